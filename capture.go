package repaint

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/region"
)

// CaptureSource selects what a capture task reads.
type CaptureSource uint8

const (
	// CaptureComposition reads the composited area only.
	CaptureComposition CaptureSource = iota

	// CaptureFramebuffer reads the whole framebuffer including
	// borders.
	CaptureFramebuffer
)

// CaptureTask is one queued framebuffer read. The host enqueues tasks
// before a repaint; the renderer resolves them during the repaint and
// retires each exactly once, complete or failed.
type CaptureTask struct {
	o      *OutputState
	source CaptureSource
	dest   Buffer
	done   func(error)

	retired bool
	op      backend.ReadPixelsOp
	flip    bool
	waiter  EventSource
	fenceFd int
}

// QueueCapture schedules a read into dest, a shared-memory buffer
// sized exactly to the capture source. done runs once, on the loop
// thread, after the next repaint of the output.
func (o *OutputState) QueueCapture(source CaptureSource, dest Buffer, done func(error)) *CaptureTask {
	task := &CaptureTask{o: o, source: source, dest: dest, done: done, fenceFd: -1}
	o.captures = append(o.captures, task)
	return task
}

// Cancel retires the task as failed if it has not completed yet,
// dropping any in-flight read.
func (t *CaptureTask) Cancel() {
	t.fail(fmt.Errorf("repaint: capture cancelled"))
}

func (t *CaptureTask) fail(err error) {
	if t.retired {
		return
	}
	t.retire(err)
}

func (t *CaptureTask) retire(err error) {
	t.retired = true
	if t.waiter != nil {
		t.waiter.Remove()
		t.waiter = nil
	}
	if t.fenceFd >= 0 {
		unix.Close(t.fenceFd)
		t.fenceFd = -1
	}
	if t.op != nil {
		t.op.Close()
		t.op = nil
	}
	if t.done != nil {
		t.done(err)
	}
}

// sourceRect returns the capture rectangle in framebuffer coordinates.
func (t *CaptureTask) sourceRect() region.Rect {
	if t.source == CaptureFramebuffer {
		w, h := t.o.target.Size()
		return region.Rect{X0: 0, Y0: 0, X1: w, Y1: h}
	}
	return t.o.area
}

// validate rejects destinations the read cannot fill in place.
func (t *CaptureTask) validate(rect region.Rect) error {
	if t.dest == nil || t.dest.Type() != BufferSHM {
		return fmt.Errorf("repaint: capture destination must be a shared-memory buffer")
	}
	if t.dest.Stride()%4 != 0 {
		return fmt.Errorf("%w: %d", ErrCaptureStride, t.dest.Stride())
	}
	w, h := t.dest.Size()
	if w != rect.Width() || h != rect.Height() {
		return fmt.Errorf("%w: destination %dx%d, source %dx%d",
			ErrCaptureSize, w, h, rect.Width(), rect.Height())
	}
	return nil
}

// resolveCaptures runs the queued tasks against the current
// framebuffer. Called with the output's target bound, after all draws
// of the frame were issued.
func (r *Renderer) resolveCaptures(o *OutputState) {
	tasks := o.captures
	o.captures = nil
	for _, task := range tasks {
		if task.retired {
			continue
		}
		r.resolveCapture(o, task)
	}
}

func (r *Renderer) resolveCapture(o *OutputState, task *CaptureTask) {
	rect := task.sourceRect()
	if err := task.validate(rect); err != nil {
		task.retire(err)
		return
	}
	task.flip = o.target.Origin() == backend.OriginBottomLeft

	if r.loop != nil {
		if op, err := r.backend.BeginReadPixels(rect, task.dest.Format()); err == nil {
			r.watchCapture(task, op)
			return
		}
		// Pipelined reads unavailable; block instead.
	}
	task.retire(r.readCapture(task, rect))
}

// readCapture performs the blocking read. Bottom-left-origin targets
// deliver rows bottom first, so those go through a temporary that is
// flipped into the destination.
func (r *Renderer) readCapture(task *CaptureTask, rect region.Rect) error {
	stride := task.dest.Stride()
	dst := task.dest.BeginAccess()
	defer task.dest.EndAccess()

	if !task.flip {
		return r.backend.ReadPixels(rect, task.dest.Format(), dst, stride)
	}
	rows := int(rect.Height())
	tmp := make([]byte, rows*int(stride))
	if err := r.backend.ReadPixels(rect, task.dest.Format(), tmp, stride); err != nil {
		return err
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*int(stride):(y+1)*int(stride)], tmp[(rows-1-y)*int(stride):])
	}
	return nil
}

// watchCapture arms completion of a pipelined read: a fence-fd wakeup
// when the backend can export one, otherwise a timer a few refresh
// intervals out, by which point the read has long finished.
func (r *Renderer) watchCapture(task *CaptureTask, op backend.ReadPixelsOp) {
	task.op = op
	if fence := op.Fence(); fence != nil {
		if fd, ok := fence.Fd(); ok {
			// The exported fd is ours to close; retire owns it from
			// here so cancelled tasks release it too.
			src, err := r.loop.AddFd(fd, func() { task.completeAsync() })
			if err == nil {
				task.fenceFd = fd
				task.waiter = src
				return
			}
			unix.Close(fd)
			Logger().Warn("capture fence watch failed, using timer",
				slog.Any("error", err))
		}
	}
	delay := time.Duration(r.captureIntervals) * r.refresh
	task.waiter = r.loop.AddTimer(delay, func() { task.completeAsync() })
}

func (t *CaptureTask) completeAsync() {
	if t.retired {
		return
	}
	op := t.op
	t.op = nil
	dst := t.dest.BeginAccess()
	err := op.Complete(dst, t.dest.Stride(), t.flip)
	t.dest.EndAccess()
	op.Close()
	t.retire(err)
}
