package soft

import (
	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// Output is a software swapchain implementing backend.Target. It keeps
// a ring of pixmap color buffers and reports buffer age the way an EGL
// surface with EGL_EXT_buffer_age would, so the partial-repaint logic
// above it is exercised for real.
type Output struct {
	b      *Backend
	bufs   []*pixmap
	ages   []uint32 // frames since buffer content was rendered, 0 = undefined
	cur    int
	front  int // last presented buffer, -1 before the first swap
	origin backend.Origin

	damageOK   bool
	lastDamage []region.Rect
	swaps      int
}

// OutputOption configures a software output.
type OutputOption func(*Output)

// WithBufferCount sets the swapchain depth. The default is 2; 1 models
// a single-buffered target whose content always survives.
func WithBufferCount(n int) OutputOption {
	return func(o *Output) {
		if n < 1 {
			n = 1
		}
		o.bufs = make([]*pixmap, n)
		o.ages = make([]uint32, n)
	}
}

// WithBottomLeftOrigin flips the output's framebuffer origin, modeling
// a GL window surface.
func WithBottomLeftOrigin() OutputOption {
	return func(o *Output) { o.origin = backend.OriginBottomLeft }
}

// WithoutDamageRegion disables the partial-update hint so callers take
// the full-swap path.
func WithoutDamageRegion() OutputOption {
	return func(o *Output) { o.damageOK = false }
}

// NewOutput creates a software output of the given size on b.
func NewOutput(b *Backend, w, h int32, opts ...OutputOption) (*Output, error) {
	if w <= 0 || h <= 0 {
		return nil, backend.ErrInvalidDimensions
	}
	o := &Output{
		b:        b,
		bufs:     make([]*pixmap, 2),
		ages:     make([]uint32, 2),
		front:    -1,
		origin:   backend.OriginTopLeft,
		damageOK: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	for i := range o.bufs {
		o.bufs[i] = newPixmap(w, h, pixfmt.TexelRGBA8)
	}
	return o, nil
}

func (o *Output) MakeCurrent() error {
	if o.b == nil || !o.b.initialized {
		return backend.ErrNotInitialized
	}
	o.b.target = o
	return nil
}

func (o *Output) Swap(damage []region.Rect) error {
	if o.b.target != o {
		return backend.ErrNoCurrentTarget
	}
	for i := range o.ages {
		if o.ages[i] > 0 {
			o.ages[i]++
		}
	}
	o.ages[o.cur] = 1
	o.front = o.cur
	o.cur = (o.cur + 1) % len(o.bufs)
	o.swaps++
	return nil
}

func (o *Output) Flush() error {
	if o.b.target != o {
		return backend.ErrNoCurrentTarget
	}
	return nil
}

func (o *Output) Age() uint32 { return o.ages[o.cur] }

func (o *Output) SetDamageRegion(rects []region.Rect) bool {
	if !o.damageOK {
		return false
	}
	o.lastDamage = append(o.lastDamage[:0], rects...)
	return true
}

func (o *Output) Origin() backend.Origin { return o.origin }

func (o *Output) Size() (int32, int32) { return o.bufs[0].w, o.bufs[0].h }

// back returns the buffer drawing renders into.
func (o *Output) back() *pixmap { return o.bufs[o.cur] }

// Front returns the last presented buffer as tightly packed RGBA rows
// together with its byte stride, or nil before the first swap.
func (o *Output) Front() ([]byte, int32) {
	if o.front < 0 {
		return nil, 0
	}
	pm := o.bufs[o.front]
	return pm.pix, pm.stride()
}

// SwapCount reports how many frames have been presented.
func (o *Output) SwapCount() int { return o.swaps }

// LastDamage returns the most recent partial-update hint.
func (o *Output) LastDamage() []region.Rect { return o.lastDamage }
