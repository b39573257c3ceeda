package repaint

import (
	"fmt"
	"time"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// ringDepth is how many renderbuffers worth of damage history an
// output keeps. Swapchains deeper than this fall back to full
// repaints.
const ringDepth = 3

// Border regions surrounding the composited area, for targets whose
// framebuffer is larger than the output (decorations, bezels).
const (
	BorderTop uint32 = 1 << iota
	BorderLeft
	BorderRight
	BorderBottom
	BorderAll = BorderTop | BorderLeft | BorderRight | BorderBottom
)

// renderbuffer tracks the damage a particular swapchain buffer still
// needs repainted, keyed by its age as reported by the target.
type renderbuffer struct {
	damage       region.Region
	borderDamage uint32
	age          uint32
}

// OutputState holds everything the renderer keeps per output: the
// target, the composited area within its framebuffer, the damage ring
// and the optional shadow framebuffer used for output color
// transforms.
type OutputState struct {
	r      *Renderer
	target backend.Target

	// area is the composited region in framebuffer coordinates.
	// Anything outside it is border.
	area region.Rect

	ring   []*renderbuffer
	chosen *renderbuffer

	colorTransform *ColorTransform
	shadow         backend.RenderTarget

	captures []*CaptureTask

	outputMatrix backend.Mat4
	drawCalls    int

	// fixedFramebuffer marks targets that render in place and present
	// with Flush instead of a swap chain.
	fixedFramebuffer bool

	// lastFence is the completion fence of the most recent repaint.
	lastFence backend.Fence

	// lastQuery is the timing query of the most recent repaint, nil
	// when the backend cannot time frames.
	lastQuery backend.FrameQuery
}

// FrameTime reports the measured render time of the most recent
// repaint. The second return is false before the first repaint and on
// backends without frame timing.
func (o *OutputState) FrameTime() (time.Duration, bool) {
	if o.lastQuery == nil {
		return 0, false
	}
	return o.lastQuery.Duration()
}

type outputOption func(*OutputState)

// WithOutputColorTransform applies a color transform between
// composition and scanout. Unless shadow framebuffers are disabled on
// the renderer, composition happens into an intermediate texture which
// is then blitted through the transform.
func WithOutputColorTransform(t *ColorTransform) outputOption {
	return func(o *OutputState) { o.colorTransform = t }
}

// WithFixedFramebuffer marks the target as rendering in place, with no
// swap chain. Presentation uses Flush instead of Swap.
func WithFixedFramebuffer() outputOption {
	return func(o *OutputState) { o.fixedFramebuffer = true }
}

// CreateOutputState prepares per-output repaint state for target. The
// area rectangle positions the composited region inside the target's
// framebuffer; pixels outside it are treated as border.
func (r *Renderer) CreateOutputState(target backend.Target, area region.Rect, opts ...outputOption) (*OutputState, error) {
	if area.Empty() {
		return nil, fmt.Errorf("repaint: empty output area %v", area)
	}
	o := &OutputState{r: r, target: target, area: area}
	for _, opt := range opts {
		opt(o)
	}
	o.updateMatrix()
	if err := o.allocShadow(); err != nil {
		return nil, err
	}
	return o, nil
}

// ResizeOutputState moves or resizes the composited area. Damage
// history becomes meaningless, so the ring is dropped and the next
// repaint of every buffer is full.
func (o *OutputState) ResizeOutputState(area region.Rect) error {
	if area.Empty() {
		return fmt.Errorf("repaint: empty output area %v", area)
	}
	sameSize := area.Width() == o.area.Width() && area.Height() == o.area.Height()
	o.area = area
	o.ring = nil
	o.chosen = nil
	o.updateMatrix()
	if !sameSize {
		if o.shadow != nil {
			o.shadow.Close()
			o.shadow = nil
		}
		return o.allocShadow()
	}
	return nil
}

// Destroy releases the output's GPU resources and fails any queued
// captures.
func (o *OutputState) Destroy() {
	for _, task := range o.captures {
		task.fail(fmt.Errorf("repaint: output destroyed"))
	}
	o.captures = nil
	if o.shadow != nil {
		o.shadow.Close()
		o.shadow = nil
	}
	if o.lastFence != nil {
		o.lastFence.Close()
		o.lastFence = nil
	}
	o.ring = nil
}

// DrawCalls reports how many draw calls the last repaint issued.
func (o *OutputState) DrawCalls() int { return o.drawCalls }

func (o *OutputState) allocShadow() error {
	if o.colorTransform.Identity() || o.r.shadowDisabled {
		return nil
	}
	rt, err := o.r.backend.CreateRenderTarget(o.area.Width(), o.area.Height(), pixfmt.TexelF16)
	if err != nil {
		return fmt.Errorf("repaint: shadow framebuffer: %w", err)
	}
	o.shadow = rt
	return nil
}

// updateMatrix caches the output-to-clip projection. Output pixel
// (0,0) is the top-left of the composition area; the viewport places
// the area inside the framebuffer, and bottom-left-origin backends
// flip rows in memory addressing, not here.
func (o *OutputState) updateMatrix() {
	m := backend.Mat4Identity
	m[0] = 2 / float32(o.area.Width())
	m[5] = -2 / float32(o.area.Height())
	m[12] = -1
	m[13] = 1
	o.outputMatrix = m
}

// addDamage accumulates damage into every renderbuffer in the ring,
// so each buffer repaints it whenever it next comes up.
func (o *OutputState) addDamage(damage *region.Region) {
	for _, rb := range o.ring {
		rb.damage.Union(damage)
	}
}

// AddBorderDamage marks border regions dirty on every buffer.
func (o *OutputState) AddBorderDamage(mask uint32) {
	for _, rb := range o.ring {
		rb.borderDamage |= mask
	}
}

// fullArea returns the composited area in output coordinates.
func (o *OutputState) fullArea() region.Rect {
	return region.Rect{X0: 0, Y0: 0, X1: o.area.Width(), Y1: o.area.Height()}
}

// pickRenderbuffer selects the ring entry matching the buffer the
// target handed back, identified by its age. Age zero means the
// buffer contents are undefined; an age deeper than the ring means
// its history was already dropped. Either way the buffer is
// refurbished with full damage.
func (o *OutputState) pickRenderbuffer(age uint32) *renderbuffer {
	if age > 0 {
		for _, rb := range o.ring {
			if rb.age == age {
				rb.age = 0
				o.chosen = rb
				return rb
			}
		}
	}
	var rb *renderbuffer
	if len(o.ring) < ringDepth {
		rb = &renderbuffer{}
		o.ring = append(o.ring, rb)
	} else {
		rb = o.ring[0]
		for _, cand := range o.ring[1:] {
			if cand.age > rb.age {
				rb = cand
			}
		}
	}
	rb.age = 0
	rb.damage.Clear()
	rb.damage.UnionRect(o.fullArea())
	rb.borderDamage = BorderAll
	o.chosen = rb
	return rb
}

// finishFrame ages every buffer; the one just rendered comes out at
// age 1, matching targets that report "rendered one frame ago" for the
// buffer they hand back immediately after a swap.
func (o *OutputState) finishFrame() {
	for _, rb := range o.ring {
		rb.age++
	}
	o.chosen = nil
}
