package repaint

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// Renderer composites paint nodes onto output targets. All methods
// must be called from the host's event-loop thread; one renderer
// shares one GPU context across every output it repaints.
type Renderer struct {
	backend backend.Backend
	loop    EventLoop
	binder  *colorBinder

	surfaces map[*Surface]struct{}
	imported map[Buffer]*bufferState

	forceFullUpload  bool
	captureIntervals int
	refresh          time.Duration
	debug            DebugFlags
	shadowDisabled   bool
	shadowFullRedraw bool

	frame             uint64
	lastFrameDuration time.Duration
	loggedMakeCurrent bool
}

// New creates a renderer. Without WithBackend the best registered
// backend is selected and initialized.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		surfaces:         make(map[*Surface]struct{}),
		imported:         make(map[Buffer]*bufferState),
		captureIntervals: 5,
		refresh:          time.Second / 60,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		b, err := backend.InitDefault()
		if err != nil {
			return nil, err
		}
		r.backend = b
	}
	r.binder = newColorBinder(r.backend)
	return r, nil
}

// Backend exposes the GPU backend the renderer composites with.
func (r *Renderer) Backend() backend.Backend { return r.backend }

// Frame returns the number of completed repaints.
func (r *Renderer) Frame() uint64 { return r.frame }

// LastFrameDuration reports how long the most recent repaint took to
// issue. GPU execution continues asynchronously past it.
func (r *Renderer) LastFrameDuration() time.Duration { return r.lastFrameDuration }

// Close releases cached color-transform resources. Surfaces and
// output states are destroyed by their owners.
func (r *Renderer) Close() {
	r.binder.cache.Clear()
}

// ImportExternalBuffer eagerly imports an external GPU buffer so a
// later attach is a map lookup. Returns false when the format has no
// import path; the host then falls back to shared memory.
func (r *Renderer) ImportExternalBuffer(buf Buffer) bool {
	if buf.Type() != BufferDMABuf {
		return false
	}
	if _, ok := r.imported[buf]; ok {
		return true
	}
	st, err := r.newDMABufState(buf)
	if err != nil {
		Logger().Debug("external buffer import rejected", slog.Any("error", err))
		return false
	}
	r.imported[buf] = st
	return true
}

// RepaintOutput composites the node list onto the output. damage is
// the frame's global damage in output coordinates; it accumulates
// into every renderbuffer so partial repaints stay correct across the
// swap chain. The only frame-fatal error is a failed make-current;
// per-node failures degrade and are logged.
func (r *Renderer) RepaintOutput(o *OutputState, nodes []PaintNode, damage *region.Region) error {
	start := time.Now()

	if err := o.target.MakeCurrent(); err != nil {
		if !r.loggedMakeCurrent {
			Logger().Error("make-current failed, skipping frames", slog.Any("error", err))
			r.loggedMakeCurrent = true
		}
		return fmt.Errorf("%w: %v", ErrMakeCurrent, err)
	}
	r.loggedMakeCurrent = false

	o.drawCalls = 0
	o.addDamage(damage)
	rb := o.pickRenderbuffer(o.target.Age())

	for s := range r.surfaces {
		s.usedThisFrame = false
	}

	_, fbH := o.target.Size()
	useShadow := o.shadow != nil

	var desc backend.PassDesc
	if useShadow {
		desc = backend.PassDesc{
			Target:            o.shadow,
			Viewport:          o.fullArea(),
			FramebufferHeight: o.area.Height(),
			Origin:            backend.OriginTopLeft,
		}
	} else {
		desc = backend.PassDesc{
			Viewport:          o.area,
			FramebufferHeight: fbH,
			Origin:            o.target.Origin(),
		}
	}
	// Frame timing spans draw emission through fence record. Backends
	// without timing leave the query nil and FrameTime reports nothing.
	query, _ := r.backend.BeginFrameQuery()

	if err := r.backend.BeginPass(desc); err != nil {
		return fmt.Errorf("repaint: begin pass: %w", err)
	}

	fc := frameContext{r: r, o: o, debug: r.debug}

	if r.debug != 0 && !rb.damage.Empty() {
		// Overlay pixels outside this frame's damage would go stale,
		// so repaint the rest of the output with overlays off first.
		var undamaged region.Region
		undamaged.UnionRect(o.fullArea())
		undamaged.Subtract(&rb.damage)
		if !undamaged.Empty() {
			fc.debug = 0
			fc.damage = &undamaged
			fc.compositeNodes(nodes)
			fc.debug = r.debug
		}
	}

	o.target.SetDamageRegion(rb.damage.Rects())

	repaint := &rb.damage
	if useShadow && r.shadowFullRedraw {
		var full region.Region
		full.UnionRect(o.fullArea())
		repaint = &full
	}
	fc.damage = repaint
	fc.compositeNodes(nodes)

	r.backend.EndPass()

	if useShadow {
		r.blitShadow(o)
	}

	r.resolveCaptures(o)

	if o.lastFence != nil {
		o.lastFence.Close()
		o.lastFence = nil
	}
	if fence, err := r.backend.CreateFence(); err == nil {
		o.lastFence = fence
		r.distributeReleaseFences(o, fence)
	} else {
		Logger().Warn("render fence unavailable", slog.Any("error", err))
	}
	if query != nil {
		query.End()
		o.lastQuery = query
	}

	var err error
	if o.fixedFramebuffer {
		err = o.target.Flush()
	} else {
		err = o.target.Swap(rb.damage.Rects())
	}
	if err != nil {
		Logger().Error("present failed", slog.Any("error", err))
	}

	rb.damage.Clear()
	rb.borderDamage = 0
	o.finishFrame()
	r.frame++
	r.lastFrameDuration = time.Since(start)
	return nil
}

// blitShadow copies the composited shadow texture onto the target
// through the output color transform.
func (r *Renderer) blitShadow(o *OutputState) {
	uniforms, err := r.binder.bind(o.colorTransform)
	if err != nil {
		Logger().Error("output color transform bind failed, blitting untransformed",
			slog.Any("error", err))
		uniforms = backend.ColorUniforms{Identity: true}
	}
	cfg := backend.ShaderConfig{
		Variant:  pixfmt.VariantRGBA,
		Texcoord: backend.TexcoordSupplied,
		Alpha:    1,
		Filter:   backend.FilterNearest,
		Color:    uniforms,
	}
	if err := r.backend.Blit(o.shadow, &cfg, o.area); err != nil {
		Logger().Error("shadow blit failed", slog.Any("error", err))
	}
}

// ReadPixels synchronously reads a rectangle of the output's current
// framebuffer into dst, top row first. The output must have been
// repainted at least once.
func (r *Renderer) ReadPixels(o *OutputState, rect region.Rect, format uint32, dst []byte, stride int32) error {
	if err := o.target.MakeCurrent(); err != nil {
		return fmt.Errorf("%w: %v", ErrMakeCurrent, err)
	}
	if o.target.Origin() != backend.OriginBottomLeft {
		return r.backend.ReadPixels(rect, format, dst, stride)
	}
	rows := int(rect.Height())
	tmp := make([]byte, rows*int(stride))
	if err := r.backend.ReadPixels(rect, format, tmp, stride); err != nil {
		return err
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*int(stride):(y+1)*int(stride)], tmp[(rows-1-y)*int(stride):])
	}
	return nil
}

// CreateFenceFd duplicates the completion fence of the output's last
// repaint into a pollable fd owned by the caller. Returns false when
// no fence exists or the backend cannot export fds.
func (r *Renderer) CreateFenceFd(o *OutputState) (int, bool) {
	if o.lastFence == nil {
		return -1, false
	}
	return o.lastFence.Fd()
}

// distributeReleaseFences hands every surface sampled this frame a
// duplicated fence fd through its release hook.
func (r *Renderer) distributeReleaseFences(o *OutputState, fence backend.Fence) {
	for s := range r.surfaces {
		if !s.usedThisFrame || s.releaseHook == nil {
			continue
		}
		fd, ok := fence.Fd()
		if !ok {
			return
		}
		s.installReleaseFd(fd, r.frame, o)
	}
}
