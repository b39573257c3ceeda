// Package backend defines the GPU contract the repaint core draws
// through.
//
// The core issues all GPU work through the Backend interface; per-output
// presentation surfaces are reached through Target. Implementations are
// registered by name via Register and selected with Get or Default.
// Two implementations ship with this module: backend/soft, a pure-Go
// reference renderer, and backend/wgpu, a GPU renderer over gogpu/wgpu.
package backend

import (
	"errors"
	"time"

	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrUnsupported is returned for optional capabilities a backend
	// does not provide (dmabuf import, pipelined readback, fence fds).
	ErrUnsupported = errors.New("backend: operation not supported")

	// ErrNoCurrentTarget is returned when drawing without a bound target.
	ErrNoCurrentTarget = errors.New("backend: no current target")

	// ErrInvalidDimensions is returned for non-positive texture sizes.
	ErrInvalidDimensions = errors.New("backend: invalid dimensions")

	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("backend: texture has been released")
)

// TextureDesc describes a texture allocation.
type TextureDesc struct {
	// Width and Height are the texel dimensions of the texture. They
	// may exceed the logical buffer dimensions; pitches are recorded
	// separately by the caller.
	Width, Height int32

	// Texel is the storage kind of one texel.
	Texel pixfmt.TexelKind

	// Label is an optional debug label.
	Label string
}

// Texture is one GPU texture plane.
type Texture interface {
	// Width returns the texture width in texels.
	Width() int32

	// Height returns the texture height in texels.
	Height() int32

	// Upload replaces the full texture contents. The stride is in
	// bytes; rows are tightly packed when stride equals width times
	// the texel size.
	Upload(data []byte, stride int32) error

	// UploadRect replaces the texels inside r, reading the matching
	// sub-rows of data. The data slice covers the full source plane;
	// the read offset is derived from r and stride.
	UploadRect(data []byte, stride int32, r region.Rect) error

	// Close releases the texture. Further operations return
	// ErrTextureReleased.
	Close()
}

// DMABufPlane describes one plane of an external GPU buffer.
type DMABufPlane struct {
	FD     int
	Offset uint32
	Stride uint32
}

// DMABufAttrs carries the import parameters of an external GPU buffer.
type DMABufAttrs struct {
	Width    int32
	Height   int32
	Format   uint32 // DRM fourcc
	Modifier uint64
	Planes   []DMABufPlane
}

// RenderTarget is an offscreen framebuffer the core can redirect
// drawing to, used for the high-bit-depth shadow pass.
type RenderTarget interface {
	Width() int32
	Height() int32

	// Texture returns the color attachment for sampling in the blit.
	Texture() Texture

	Close()
}

// Origin identifies where a framebuffer places its first pixel row.
type Origin uint8

const (
	// OriginTopLeft means row 0 is the top of the image.
	OriginTopLeft Origin = iota

	// OriginBottomLeft means row 0 is the bottom, as with GL window
	// framebuffers; drawing and readback flip accordingly.
	OriginBottomLeft
)

// Target is a per-output presentation surface, supplied by the host.
type Target interface {
	// MakeCurrent binds the target for subsequent passes and reads.
	MakeCurrent() error

	// Swap presents the rendered frame, hinting the swapped damage.
	Swap(damage []region.Rect) error

	// Flush finishes rendering for targets without a swap chain.
	Flush() error

	// Age reports how many frames ago the target's current buffer was
	// last rendered, or 0 when its content is undefined.
	Age() uint32

	// SetDamageRegion supplies the partial-update hint. Returns false
	// when the target cannot honor it.
	SetDamageRegion(rects []region.Rect) bool

	// Origin reports the target's framebuffer origin.
	Origin() Origin

	// Size returns the framebuffer dimensions.
	Size() (w, h int32)
}

// Fence is a GPU completion object.
type Fence interface {
	// Fd duplicates the fence into a pollable file descriptor that
	// becomes readable once the fence signals. The caller owns the
	// returned fd. Returns false when the backend cannot export fds.
	Fd() (int, bool)

	// Signaled polls the fence state without blocking.
	Signaled() bool

	Close()
}

// ReadPixelsOp is a pipelined framebuffer read. The read is issued
// unsynchronized; Fence signals when the pixels are ready, after which
// Complete copies them out.
type ReadPixelsOp interface {
	// Fence returns the completion fence of the read, or nil when the
	// backend could not create one (callers fall back to a timer).
	Fence() Fence

	// Complete copies the read pixels into dst with the given row
	// stride, reversing row order when flip is set.
	Complete(dst []byte, stride int32, flip bool) error

	// Close abandons the operation and frees its staging storage.
	Close()
}

// PassDesc opens a draw pass.
type PassDesc struct {
	// Target redirects drawing to an offscreen render target.
	// When nil the pass draws into the current output framebuffer.
	Target RenderTarget

	// Viewport is the composition area inside the framebuffer, in
	// top-left-origin coordinates.
	Viewport region.Rect

	// FramebufferHeight is the full height of the destination, needed
	// for viewport inversion on bottom-left-origin targets.
	FramebufferHeight int32

	// Origin is the destination's framebuffer origin.
	Origin Origin
}

// Vertex is one output-space position. Texture coordinates are derived
// in the shader from the config's surface-to-buffer transform.
type Vertex struct {
	X, Y float32
}

// Backend issues GPU commands and owns GPU resources. All methods are
// called from the single compositor thread.
type Backend interface {
	// Name returns the backend identifier (e.g. "soft", "wgpu").
	Name() string

	// Init initializes the backend. It must be called before any
	// resource creation or drawing.
	Init() error

	// Close releases all backend resources.
	Close()

	// CreateTexture allocates a texture plane.
	CreateTexture(desc TextureDesc) (Texture, error)

	// ImportDMABuf imports one plane of an external GPU buffer as a
	// texture. desc carries the plane's texel kind and dimensions.
	// Returns ErrUnsupported when the backend cannot import.
	ImportDMABuf(attrs *DMABufAttrs, plane int, desc TextureDesc) (Texture, error)

	// CreateRenderTarget allocates an offscreen framebuffer.
	CreateRenderTarget(w, h int32, texel pixfmt.TexelKind) (RenderTarget, error)

	// BeginPass opens a draw pass. At most one pass is open at a time.
	BeginPass(desc PassDesc) error

	// Draw renders the indices as a triangle strip over verts with the
	// given shader config. Degenerate triangles separate chained
	// sub-meshes.
	Draw(cfg *ShaderConfig, verts []Vertex, indices []uint16) error

	// EndPass closes the open pass.
	EndPass()

	// Blit draws src onto the current output framebuffer through cfg,
	// applying the output color transform. Used for the shadow blit.
	Blit(src RenderTarget, cfg *ShaderConfig, viewport region.Rect) error

	// ReadPixels synchronously reads a rectangle of the current
	// framebuffer as the given fourcc format into dst. Rows follow
	// framebuffer order: bottom-left-origin targets emit the bottom
	// row of r first and the caller reverses.
	ReadPixels(r region.Rect, format uint32, dst []byte, stride int32) error

	// BeginReadPixels starts a pipelined read of the current
	// framebuffer. Returns ErrUnsupported when unavailable.
	BeginReadPixels(r region.Rect, format uint32) (ReadPixelsOp, error)

	// CreateFence records a fence ordered after all previously issued
	// work.
	CreateFence() (Fence, error)

	// WaitFence makes the GPU wait for an externally produced fence fd
	// before executing subsequent commands. The fd is not consumed.
	WaitFence(fd int) error

	// BeginFrameQuery opens a timing query over the frame's rendering
	// work. Returns ErrUnsupported when the backend cannot time frames.
	BeginFrameQuery() (FrameQuery, error)
}

// FrameQuery measures the rendering time of one frame. End closes the
// query after the frame's work is submitted; Duration reports the
// measurement once it is available.
type FrameQuery interface {
	End()
	Duration() (time.Duration, bool)
}
