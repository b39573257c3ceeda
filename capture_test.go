package repaint

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/gocomp/repaint/backend/soft"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

type fakeSource struct{ removed bool }

func (s *fakeSource) Remove() { s.removed = true }

// fakeLoop records fd and timer registrations so tests can fire them
// deterministically.
type fakeLoop struct {
	fdFns    []func()
	fdSrcs   []*fakeSource
	fds      []int
	timerFns []func()
	delays   []time.Duration
}

func (l *fakeLoop) AddFd(fd int, fn func()) (EventSource, error) {
	src := &fakeSource{}
	l.fdFns = append(l.fdFns, fn)
	l.fdSrcs = append(l.fdSrcs, src)
	l.fds = append(l.fds, fd)
	return src, nil
}

func (l *fakeLoop) AddTimer(d time.Duration, fn func()) EventSource {
	l.timerFns = append(l.timerFns, fn)
	l.delays = append(l.delays, d)
	return &fakeSource{}
}

func newCaptureDest(t *testing.T, w, h int32) *SHMBuffer {
	t.Helper()
	buf, err := NewSHMBuffer(w, h, pixfmt.ABGR8888, 0)
	if err != nil {
		t.Fatalf("NewSHMBuffer: %v", err)
	}
	return buf
}

func TestCaptureCompositionBlocking(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)
	dest := newCaptureDest(t, 4, 4)
	var calls int
	var captureErr error
	o.QueueCapture(CaptureComposition, dest, func(err error) {
		calls++
		captureErr = err
	})

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if calls != 1 {
		t.Fatalf("done ran %d times, want 1", calls)
	}
	if captureErr != nil {
		t.Fatalf("capture failed: %v", captureErr)
	}
	data := dest.Data()
	if data[0] != 255 || data[1] != 0 || data[3] != 255 {
		t.Errorf("captured pixel = %v, want red", data[:4])
	}
}

func TestCaptureFramebufferIncludesBorder(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	tgt, err := soft.NewOutput(sb, 8, 8)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	o, err := r.CreateOutputState(tgt, region.NewRect(2, 2, 4, 4))
	if err != nil {
		t.Fatalf("CreateOutputState: %v", err)
	}
	defer o.Destroy()

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)
	comp := newCaptureDest(t, 4, 4)
	fb := newCaptureDest(t, 8, 8)
	o.QueueCapture(CaptureComposition, comp, func(err error) {
		if err != nil {
			t.Errorf("composition capture: %v", err)
		}
	})
	o.QueueCapture(CaptureFramebuffer, fb, func(err error) {
		if err != nil {
			t.Errorf("framebuffer capture: %v", err)
		}
	})

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if c := comp.Data(); c[0] != 255 {
		t.Errorf("composition corner = %v, want red", c[:4])
	}
	fbData := fb.Data()
	if fbData[0] != 0 {
		t.Errorf("framebuffer border = %v, want untouched", fbData[:4])
	}
	center := (3*8 + 3) * 4
	if fbData[center] != 255 {
		t.Errorf("framebuffer center = %v, want red", fbData[center:center+4])
	}
}

func TestCaptureValidation(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 8, 8, nil)
	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)

	var sizeErr, strideErr, kindErr error
	o.QueueCapture(CaptureComposition, newCaptureDest(t, 4, 4), func(err error) { sizeErr = err })

	badStride, err := NewSHMBuffer(8, 8, pixfmt.ABGR8888, 34)
	if err != nil {
		t.Fatalf("NewSHMBuffer: %v", err)
	}
	o.QueueCapture(CaptureComposition, badStride, func(err error) { strideErr = err })

	o.QueueCapture(CaptureComposition, NewSolidBuffer([4]float32{}, 8, 8), func(err error) { kindErr = err })

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 8, 8))

	if !errors.Is(sizeErr, ErrCaptureSize) {
		t.Errorf("size error = %v, want ErrCaptureSize", sizeErr)
	}
	if !errors.Is(strideErr, ErrCaptureStride) {
		t.Errorf("stride error = %v, want ErrCaptureStride", strideErr)
	}
	if kindErr == nil {
		t.Error("non-shm destination accepted")
	}
}

func TestCaptureCancel(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)
	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)

	var calls int
	var lastErr error
	task := o.QueueCapture(CaptureComposition, newCaptureDest(t, 4, 4), func(err error) {
		calls++
		lastErr = err
	})
	task.Cancel()
	if calls != 1 || lastErr == nil {
		t.Fatalf("cancel: calls = %d, err = %v, want one failure", calls, lastErr)
	}
	task.Cancel()

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))
	if calls != 1 {
		t.Errorf("done ran %d times, want exactly once", calls)
	}
}

func TestCaptureAsyncFenceCompletion(t *testing.T) {
	loop := &fakeLoop{}
	r, sb := newTestRenderer(t, nil, WithEventLoop(loop))
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{0, 1, 0, 1}, 4, 4)
	dest := newCaptureDest(t, 4, 4)
	var calls int
	o.QueueCapture(CaptureComposition, dest, func(err error) {
		calls++
		if err != nil {
			t.Errorf("capture: %v", err)
		}
	})

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if calls != 0 {
		t.Fatal("capture completed before the fence fired")
	}
	if len(loop.fdFns) != 1 {
		t.Fatalf("fd watches = %d, want 1", len(loop.fdFns))
	}
	loop.fdFns[0]()
	if calls != 1 {
		t.Fatalf("done ran %d times after wakeup, want 1", calls)
	}
	if data := dest.Data(); data[1] != 255 {
		t.Errorf("captured pixel = %v, want green", data[:4])
	}
	if !loop.fdSrcs[0].removed {
		t.Error("fd watch not removed after completion")
	}
	if !fdClosed(loop.fds[0]) {
		t.Error("exported fence fd still open after completion")
	}
}

func TestCaptureCancelClosesFenceFd(t *testing.T) {
	loop := &fakeLoop{}
	r, sb := newTestRenderer(t, nil, WithEventLoop(loop))
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{0, 1, 0, 1}, 4, 4)
	dest := newCaptureDest(t, 4, 4)
	task := o.QueueCapture(CaptureComposition, dest, nil)

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if len(loop.fds) != 1 {
		t.Fatalf("fd watches = %d, want 1", len(loop.fds))
	}
	task.Cancel()
	if !fdClosed(loop.fds[0]) {
		t.Error("exported fence fd still open after cancel")
	}
}

func TestCaptureTimerFallback(t *testing.T) {
	loop := &fakeLoop{}
	r, sb := newTestRenderer(t, []soft.Option{soft.WithoutFenceFds()},
		WithEventLoop(loop), WithCaptureTimerIntervals(3), WithRefreshInterval(10*time.Millisecond))
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{0, 0, 1, 1}, 4, 4)
	dest := newCaptureDest(t, 4, 4)
	var calls int
	o.QueueCapture(CaptureComposition, dest, func(err error) {
		calls++
		if err != nil {
			t.Errorf("capture: %v", err)
		}
	})

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if len(loop.timerFns) != 1 {
		t.Fatalf("timers = %d, want 1", len(loop.timerFns))
	}
	if loop.delays[0] != 30*time.Millisecond {
		t.Errorf("timer delay = %v, want 30ms", loop.delays[0])
	}
	loop.timerFns[0]()
	if calls != 1 {
		t.Fatalf("done ran %d times after timer, want 1", calls)
	}
	if data := dest.Data(); data[2] != 255 {
		t.Errorf("captured pixel = %v, want blue", data[:4])
	}
}

func TestCaptureBlocksWhenPipelinedReadsUnavailable(t *testing.T) {
	loop := &fakeLoop{}
	r, sb := newTestRenderer(t, []soft.Option{soft.WithoutAsyncReadback()}, WithEventLoop(loop))
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)
	dest := newCaptureDest(t, 4, 4)
	var calls int
	o.QueueCapture(CaptureComposition, dest, func(err error) {
		calls++
		if err != nil {
			t.Errorf("capture: %v", err)
		}
	})

	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if calls != 1 {
		t.Fatalf("done ran %d times, want 1 (blocking fallback)", calls)
	}
	if len(loop.fdFns)+len(loop.timerFns) != 0 {
		t.Error("blocking fallback still registered loop sources")
	}
}

func TestCaptureFlipsBottomLeftOrigin(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 8, 8,
		[]soft.OutputOption{soft.WithBufferCount(1), soft.WithBottomLeftOrigin()})

	top := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	top.Visible = region.FromRect(region.NewRect(0, 0, 8, 4))
	bottom := solidNode(t, r, [4]float32{0, 0, 1, 1}, 8, 8)
	bottom.Visible = region.FromRect(region.NewRect(0, 4, 8, 4))

	dest := newCaptureDest(t, 8, 8)
	o.QueueCapture(CaptureComposition, dest, func(err error) {
		if err != nil {
			t.Errorf("capture: %v", err)
		}
	})
	repaint(t, r, o, []PaintNode{top, bottom}, region.NewRect(0, 0, 8, 8))

	// The raw framebuffer read delivers rows bottom first; flipping it
	// must reproduce the capture exactly.
	raw := make([]byte, 8*8*4)
	if err := sb.ReadPixels(region.NewRect(0, 0, 8, 8), pixfmt.ABGR8888, raw, 32); err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	img := &image.NRGBA{Pix: raw, Stride: 32, Rect: image.Rect(0, 0, 8, 8)}
	want := imaging.FlipV(img)
	if !bytes.Equal(dest.Data(), want.Pix) {
		t.Fatal("capture does not match the flipped framebuffer")
	}
	if d := dest.Data(); d[0] != 255 || d[2] != 0 {
		t.Errorf("top-left pixel = %v, want red", d[:4])
	}
}

func TestOutputDestroyFailsQueuedCaptures(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	tgt, err := soft.NewOutput(sb, 4, 4)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	o, err := r.CreateOutputState(tgt, region.NewRect(0, 0, 4, 4))
	if err != nil {
		t.Fatalf("CreateOutputState: %v", err)
	}

	var captureErr error
	o.QueueCapture(CaptureComposition, newCaptureDest(t, 4, 4), func(err error) { captureErr = err })
	o.Destroy()
	if captureErr == nil {
		t.Fatal("queued capture survived output destruction")
	}
}
