package repaint

import (
	"time"

	"github.com/gocomp/repaint/backend"
)

// DebugFlags enable visual debugging overlays. All of them force full
// redraws, since stale overlay pixels outside the damage would linger
// otherwise.
type DebugFlags uint8

const (
	// DebugWireframe outlines every composited triangle.
	DebugWireframe DebugFlags = 1 << iota

	// DebugDamage tints repainted regions.
	DebugDamage

	// DebugOpaque tints opaque and blended regions differently.
	DebugOpaque
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithBackend selects the GPU backend. The backend must already be
// initialized. Without this option New picks the best registered
// backend and initializes it.
func WithBackend(b backend.Backend) Option {
	return func(r *Renderer) { r.backend = b }
}

// WithEventLoop wires the host event loop, enabling pipelined capture
// completion. Without it captures fall back to blocking reads.
func WithEventLoop(loop EventLoop) Option {
	return func(r *Renderer) { r.loop = loop }
}

// WithForceFullUpload disables partial texture uploads; every flush
// re-uploads whole planes. A workaround knob for drivers with broken
// sub-image paths.
func WithForceFullUpload() Option {
	return func(r *Renderer) { r.forceFullUpload = true }
}

// WithCaptureTimerIntervals sets how many refresh intervals the
// capture timer fallback waits when no fence fd is available.
func WithCaptureTimerIntervals(n int) Option {
	return func(r *Renderer) { r.captureIntervals = n }
}

// WithRefreshInterval sets the nominal output refresh period used to
// scale the capture timer fallback.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Renderer) { r.refresh = d }
}

// WithDebug enables debugging overlays.
func WithDebug(flags DebugFlags) Option {
	return func(r *Renderer) { r.debug = flags }
}

// WithShadowDisabled keeps output color transforms from allocating
// intermediate framebuffers; transforms then apply per node only.
func WithShadowDisabled() Option {
	return func(r *Renderer) { r.shadowDisabled = true }
}

// WithShadowFullRedraw forces frames that render through a shadow
// framebuffer to composite the full area instead of the damage.
func WithShadowFullRedraw() Option {
	return func(r *Renderer) { r.shadowFullRedraw = true }
}
