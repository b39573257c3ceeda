package soft

import (
	"fmt"
	"time"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

func init() {
	backend.Register(backend.BackendSoft, func() backend.Backend {
		return New()
	})
}

// Backend is the software implementation of backend.Backend.
type Backend struct {
	initialized bool
	target      *Output

	passOpen bool
	rc       rasterContext

	fences        bool
	fenceFds      bool
	asyncReadback bool
	dmabufResolve func(fd int) ([]byte, bool)
}

// Option configures a software backend.
type Option func(*Backend)

// WithoutFences makes CreateFence return ErrUnsupported, modeling a
// driver without sync objects.
func WithoutFences() Option {
	return func(b *Backend) { b.fences = false }
}

// WithoutFenceFds keeps fences but disables fd export, so callers fall
// back to timer-based completion.
func WithoutFenceFds() Option {
	return func(b *Backend) { b.fenceFds = false }
}

// WithoutAsyncReadback makes BeginReadPixels return ErrUnsupported.
func WithoutAsyncReadback() Option {
	return func(b *Backend) { b.asyncReadback = false }
}

// WithDMABufResolver supplies plane bytes for dmabuf fds, enabling
// ImportDMABuf. Without it the software backend cannot import.
func WithDMABufResolver(fn func(fd int) ([]byte, bool)) Option {
	return func(b *Backend) { b.dmabufResolve = fn }
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		fences:        true,
		fenceFds:      true,
		asyncReadback: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return backend.BackendSoft }

func (b *Backend) Init() error {
	b.initialized = true
	return nil
}

func (b *Backend) Close() {
	b.initialized = false
	b.target = nil
	b.passOpen = false
}

func (b *Backend) CreateTexture(desc backend.TextureDesc) (backend.Texture, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, backend.ErrInvalidDimensions
	}
	return &texture{pm: newPixmap(desc.Width, desc.Height, desc.Texel), label: desc.Label}, nil
}

func (b *Backend) ImportDMABuf(attrs *backend.DMABufAttrs, plane int, desc backend.TextureDesc) (backend.Texture, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	if b.dmabufResolve == nil {
		return nil, backend.ErrUnsupported
	}
	if plane < 0 || plane >= len(attrs.Planes) {
		return nil, fmt.Errorf("soft: dmabuf plane %d out of range", plane)
	}
	p := attrs.Planes[plane]
	data, ok := b.dmabufResolve(p.FD)
	if !ok {
		return nil, fmt.Errorf("soft: no dmabuf backing for fd %d: %w", p.FD, backend.ErrUnsupported)
	}
	tex, err := b.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	if int(p.Offset) > len(data) {
		tex.Close()
		return nil, fmt.Errorf("soft: dmabuf plane offset %d beyond %d bytes", p.Offset, len(data))
	}
	if err := tex.Upload(data[p.Offset:], int32(p.Stride)); err != nil {
		tex.Close()
		return nil, err
	}
	return tex, nil
}

func (b *Backend) CreateRenderTarget(w, h int32, texel pixfmt.TexelKind) (backend.RenderTarget, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	if w <= 0 || h <= 0 {
		return nil, backend.ErrInvalidDimensions
	}
	pm := newPixmap(w, h, texel)
	return &renderTarget{pm: pm, tex: &texture{pm: pm}}, nil
}

func (b *Backend) BeginPass(desc backend.PassDesc) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	var fb *pixmap
	switch {
	case desc.Target != nil:
		rt, ok := desc.Target.(*renderTarget)
		if !ok || rt.pm == nil {
			return backend.ErrTextureReleased
		}
		fb = rt.pm
	case b.target != nil:
		fb = b.target.back()
	default:
		return backend.ErrNoCurrentTarget
	}
	fbH := desc.FramebufferHeight
	if fbH == 0 {
		fbH = fb.h
	}
	b.rc = rasterContext{
		fb:   fb,
		vp:   desc.Viewport,
		fbH:  fbH,
		flip: desc.Origin == backend.OriginBottomLeft,
	}
	b.passOpen = true
	return nil
}

func (b *Backend) Draw(cfg *backend.ShaderConfig, verts []backend.Vertex, indices []uint16) error {
	if !b.passOpen {
		return backend.ErrNoCurrentTarget
	}
	for _, idx := range indices {
		if int(idx) >= len(verts) {
			return fmt.Errorf("soft: index %d out of range for %d vertices", idx, len(verts))
		}
	}
	b.rc.drawStrip(cfg, verts, indices)
	return nil
}

func (b *Backend) EndPass() {
	b.passOpen = false
	b.rc = rasterContext{}
}

// Blit draws src over the viewport of the current output framebuffer
// through the config's color transform, overwriting the destination.
func (b *Backend) Blit(src backend.RenderTarget, cfg *backend.ShaderConfig, viewport region.Rect) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if b.target == nil {
		return backend.ErrNoCurrentTarget
	}
	rt, ok := src.(*renderTarget)
	if !ok || rt.pm == nil {
		return backend.ErrTextureReleased
	}
	fb := b.target.back()
	rc := rasterContext{
		fb:   fb,
		vp:   viewport,
		fbH:  fb.h,
		flip: b.target.Origin() == backend.OriginBottomLeft,
	}
	area := viewport.Intersect(region.Rect{X0: 0, Y0: 0, X1: fb.w, Y1: fb.h})
	vpW := float32(viewport.Width())
	vpH := float32(viewport.Height())
	for y := area.Y0; y < area.Y1; y++ {
		v := (float32(y) + 0.5 - float32(viewport.Y0)) / vpH
		for x := area.X0; x < area.X1; x++ {
			u := (float32(x) + 0.5 - float32(viewport.X0)) / vpW
			c := sampleTex(rt.tex, u, v, cfg.Filter)
			c = applyColor(&cfg.Color, c)
			rc.put(x, y, c, false)
		}
	}
	return nil
}

// readRect copies a rectangle of the current framebuffer, converted to
// the requested fourcc layout, into dst with the given stride. Rows
// come out in framebuffer order: bottom-left-origin targets yield the
// bottom row of r first and the caller reverses.
func (b *Backend) readRect(r region.Rect, format uint32, dst []byte, stride int32) error {
	if b.target == nil {
		return backend.ErrNoCurrentTarget
	}
	f := pixfmt.ByCode(format)
	if f == nil {
		return fmt.Errorf("soft: readback as unknown format %#x: %w", format, backend.ErrUnsupported)
	}
	var order [4]int // dst byte index of R, G, B, A
	var hasAlpha bool
	switch f.Code {
	case pixfmt.ARGB8888:
		order, hasAlpha = [4]int{2, 1, 0, 3}, true
	case pixfmt.XRGB8888:
		order, hasAlpha = [4]int{2, 1, 0, 3}, false
	case pixfmt.ABGR8888:
		order, hasAlpha = [4]int{0, 1, 2, 3}, true
	case pixfmt.XBGR8888:
		order, hasAlpha = [4]int{0, 1, 2, 3}, false
	default:
		return fmt.Errorf("soft: readback as %s: %w", f.Name, backend.ErrUnsupported)
	}
	fb := b.target.back()
	flip := b.target.Origin() == backend.OriginBottomLeft
	area := r.Intersect(region.Rect{X0: 0, Y0: 0, X1: fb.w, Y1: fb.h})
	for j := int32(0); j < area.Height(); j++ {
		ly := area.Y0 + j
		if flip {
			ly = area.Y1 - 1 - j
		}
		my := ly
		if flip {
			my = fb.h - 1 - ly
		}
		row := j * stride
		for x := area.X0; x < area.X1; x++ {
			c := fb.texelAt(x, my)
			o := row + (x-area.X0)*4
			if int(o)+4 > len(dst) {
				return fmt.Errorf("soft: readback of %v overruns destination of %d bytes", r, len(dst))
			}
			dst[int(o)+order[0]] = unorm8(c[0])
			dst[int(o)+order[1]] = unorm8(c[1])
			dst[int(o)+order[2]] = unorm8(c[2])
			if hasAlpha {
				dst[int(o)+order[3]] = unorm8(c[3])
			} else {
				dst[int(o)+order[3]] = 0xff
			}
		}
	}
	return nil
}

func (b *Backend) ReadPixels(r region.Rect, format uint32, dst []byte, stride int32) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	return b.readRect(r, format, dst, stride)
}

// readOp is a pipelined read. The software queue completes work
// synchronously, so the pixels are staged at issue time and the fence
// is born signaled.
type readOp struct {
	staging []byte
	stride  int32
	rows    int32
	fence   *fence
}

func (op *readOp) Fence() backend.Fence {
	if op.fence == nil {
		return nil
	}
	return op.fence
}

func (op *readOp) Complete(dst []byte, stride int32, flip bool) error {
	if op.staging == nil {
		return fmt.Errorf("soft: read already completed or closed")
	}
	for y := int32(0); y < op.rows; y++ {
		src := y * op.stride
		d := y * stride
		if flip {
			d = (op.rows - 1 - y) * stride
		}
		if int(d+op.stride) > len(dst) {
			return fmt.Errorf("soft: read completion overruns destination of %d bytes", len(dst))
		}
		copy(dst[d:d+op.stride], op.staging[src:src+op.stride])
	}
	return nil
}

func (op *readOp) Close() {
	op.staging = nil
	if op.fence != nil {
		op.fence.Close()
		op.fence = nil
	}
}

func (b *Backend) BeginReadPixels(r region.Rect, format uint32) (backend.ReadPixelsOp, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	if !b.asyncReadback {
		return nil, backend.ErrUnsupported
	}
	stride := r.Width() * 4
	op := &readOp{
		staging: make([]byte, stride*r.Height()),
		stride:  stride,
		rows:    r.Height(),
	}
	if err := b.readRect(r, format, op.staging, stride); err != nil {
		return nil, err
	}
	if b.fences {
		f, err := newFence(b.fenceFds)
		if err != nil {
			return nil, err
		}
		op.fence = f
	}
	return op, nil
}

func (b *Backend) CreateFence() (backend.Fence, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	if !b.fences {
		return nil, backend.ErrUnsupported
	}
	return newFence(b.fenceFds)
}

// WaitFence blocks until the externally produced fence fd signals. The
// software queue has no deferred execution to gate, so waiting here
// gives the same ordering a GPU-side wait would.
func (b *Backend) WaitFence(fd int) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	return waitFenceFd(fd, 1000)
}

// frameQuery times a frame on the monotonic clock. Rasterization runs
// on the CPU, so wall time between begin and end is the render time.
type frameQuery struct {
	begin time.Time
	d     time.Duration
	ended bool
}

func (q *frameQuery) End() {
	if !q.ended {
		q.d = time.Since(q.begin)
		q.ended = true
	}
}

func (q *frameQuery) Duration() (time.Duration, bool) {
	return q.d, q.ended
}

func (b *Backend) BeginFrameQuery() (backend.FrameQuery, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return &frameQuery{begin: time.Now()}, nil
}
