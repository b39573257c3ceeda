package repaint

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"honnef.co/go/color"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
)

// BufferType is the producer-side variant of a buffer.
type BufferType uint8

const (
	// BufferSHM is a shared-memory buffer with CPU-readable pixels.
	BufferSHM BufferType = iota

	// BufferDMABuf is an external GPU buffer imported by fd.
	BufferDMABuf

	// BufferSolid carries a single premultiplied color and no pixels.
	BufferSolid

	// BufferOpaque is a renderer-internal buffer the core never
	// samples.
	BufferOpaque
)

// Buffer is a producer-owned image the renderer samples from. The
// renderer never outlives the buffer's destroy signal: when it fires,
// all derived GPU state is torn down on the same event-loop tick.
type Buffer interface {
	// Type returns the buffer variant.
	Type() BufferType

	// Size returns the logical pixel dimensions.
	Size() (w, h int32)

	// Stride returns the byte stride of the first plane. Meaningful
	// for shared-memory buffers only.
	Stride() int32

	// Format returns the DRM fourcc of the pixel data.
	Format() uint32

	// SolidColor returns the premultiplied color of a solid buffer.
	SolidColor() [4]float32

	// DMABuf returns the import attributes of an external buffer, nil
	// otherwise.
	DMABuf() *backend.DMABufAttrs

	// BeginAccess read-locks a shared-memory buffer and returns its
	// bytes, all planes concatenated. Balanced by EndAccess.
	BeginAccess() []byte

	// EndAccess releases the read lock.
	EndAccess()

	// Destroyed returns the buffer's destroy signal.
	Destroyed() *DestroySignal
}

// shmPlane describes where one plane of a shared-memory buffer lives
// inside its byte slab.
type shmPlane struct {
	offset int32
	stride int32 // bytes per row
	w, h   int32 // texels
}

// shmLayout computes the packed plane layout of a shared-memory buffer:
// planes are stored back to back, each with a byte stride derived from
// the first plane's pixel pitch and the plane's sub-sampling. Packed-view
// formats have a single byte plane; every view starts at offset 0 and
// reinterprets the same bytes.
func shmLayout(f *pixfmt.Format, w, h, stride int32) []shmPlane {
	pitch := stride * 8 / f.BPP
	planes := make([]shmPlane, len(f.Planes))
	var offset int32
	for i, p := range f.Planes {
		pw, ph := f.PlaneSize(i, w, h)
		bs := pitch / p.HSub * p.Texel.BytesPerTexel()
		planes[i] = shmPlane{offset: offset, stride: bs, w: pw, h: ph}
		if !f.PackedViews {
			offset += bs * ph
		}
	}
	return planes
}

// SHMBuffer is a heap-backed shared-memory buffer for tests and
// in-process producers. Multi-planar formats store their planes back to
// back in one slab.
type SHMBuffer struct {
	w, h    int32
	stride  int32
	format  uint32
	data    []byte
	locks   int
	destroy DestroySignal
}

// NewSHMBuffer allocates a shared-memory buffer. The stride must cover
// a full row of the first plane; pass 0 for tight packing. Returns an
// error for formats unknown to the registry.
func NewSHMBuffer(w, h int32, format uint32, stride int32) (*SHMBuffer, error) {
	f := pixfmt.ByCode(format)
	if f == nil {
		return nil, fmt.Errorf("%w: fourcc %#x", ErrFormatUnsupported, format)
	}
	if stride == 0 {
		stride = w * f.BPP / 8
	}
	planes := shmLayout(f, w, h, stride)
	last := planes[len(planes)-1]
	return &SHMBuffer{
		w: w, h: h, stride: stride, format: format,
		data: make([]byte, last.offset+last.stride*last.h),
	}, nil
}

func (b *SHMBuffer) Type() BufferType             { return BufferSHM }
func (b *SHMBuffer) Size() (int32, int32)         { return b.w, b.h }
func (b *SHMBuffer) Stride() int32                { return b.stride }
func (b *SHMBuffer) Format() uint32               { return b.format }
func (b *SHMBuffer) SolidColor() [4]float32       { return [4]float32{} }
func (b *SHMBuffer) DMABuf() *backend.DMABufAttrs { return nil }
func (b *SHMBuffer) Destroyed() *DestroySignal    { return &b.destroy }

func (b *SHMBuffer) BeginAccess() []byte {
	b.locks++
	return b.data
}

func (b *SHMBuffer) EndAccess() {
	if b.locks > 0 {
		b.locks--
	}
}

// Data exposes the backing slab for producers to fill.
func (b *SHMBuffer) Data() []byte { return b.data }

// Destroy fires the destroy signal. The producer calls this when it
// frees the storage.
func (b *SHMBuffer) Destroy() { b.destroy.Fire() }

// BufferFromImage converts an image into a premultiplied shared-memory
// buffer. The returned buffer uses the ABGR8888 fourcc, whose
// little-endian byte order matches image.RGBA.
func BufferFromImage(img image.Image) (*SHMBuffer, error) {
	bounds := img.Bounds()
	w, h := int32(bounds.Dx()), int32(bounds.Dy())
	buf, err := NewSHMBuffer(w, h, pixfmt.ABGR8888, 0)
	if err != nil {
		return nil, err
	}
	dst := &image.RGBA{
		Pix:    buf.data,
		Stride: int(buf.stride),
		Rect:   image.Rect(0, 0, int(w), int(h)),
	}
	draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	return buf, nil
}

// SolidBuffer is a color-only buffer: the renderer draws it through the
// solid shader variant and it holds no pixel storage.
type SolidBuffer struct {
	w, h    int32
	color   [4]float32
	destroy DestroySignal
}

// NewSolidBuffer creates a solid-color buffer from a premultiplied
// RGBA tuple.
func NewSolidBuffer(c [4]float32, w, h int32) *SolidBuffer {
	return &SolidBuffer{w: w, h: h, color: c}
}

// SolidBufferFromColor creates a solid buffer from a color in any
// color space, converted to premultiplied linear sRGB.
func SolidBufferFromColor(c color.Color, w, h int32) *SolidBuffer {
	cc := c.Convert(color.LinearSRGB)
	a := float32(cc.Values[3])
	return NewSolidBuffer([4]float32{
		float32(cc.Values[0]) * a,
		float32(cc.Values[1]) * a,
		float32(cc.Values[2]) * a,
		a,
	}, w, h)
}

func (b *SolidBuffer) Type() BufferType             { return BufferSolid }
func (b *SolidBuffer) Size() (int32, int32)         { return b.w, b.h }
func (b *SolidBuffer) Stride() int32                { return 0 }
func (b *SolidBuffer) Format() uint32               { return 0 }
func (b *SolidBuffer) SolidColor() [4]float32       { return b.color }
func (b *SolidBuffer) DMABuf() *backend.DMABufAttrs { return nil }
func (b *SolidBuffer) BeginAccess() []byte          { return nil }
func (b *SolidBuffer) EndAccess()                   {}
func (b *SolidBuffer) Destroyed() *DestroySignal    { return &b.destroy }

// Destroy fires the destroy signal.
func (b *SolidBuffer) Destroy() { b.destroy.Fire() }

// DMABufBuffer wraps external GPU buffer attributes as a Buffer.
type DMABufBuffer struct {
	attrs   backend.DMABufAttrs
	destroy DestroySignal
}

// NewDMABufBuffer creates a buffer around external plane fds. The fds
// stay owned by the producer.
func NewDMABufBuffer(attrs backend.DMABufAttrs) *DMABufBuffer {
	return &DMABufBuffer{attrs: attrs}
}

func (b *DMABufBuffer) Type() BufferType             { return BufferDMABuf }
func (b *DMABufBuffer) Size() (int32, int32)         { return b.attrs.Width, b.attrs.Height }
func (b *DMABufBuffer) Stride() int32                { return int32(b.attrs.Planes[0].Stride) }
func (b *DMABufBuffer) Format() uint32               { return b.attrs.Format }
func (b *DMABufBuffer) SolidColor() [4]float32       { return [4]float32{} }
func (b *DMABufBuffer) DMABuf() *backend.DMABufAttrs { return &b.attrs }
func (b *DMABufBuffer) BeginAccess() []byte          { return nil }
func (b *DMABufBuffer) EndAccess()                   {}
func (b *DMABufBuffer) Destroyed() *DestroySignal    { return &b.destroy }

// Destroy fires the destroy signal.
func (b *DMABufBuffer) Destroy() { b.destroy.Fire() }
