// Package pixfmt catalogues the pixel formats the repaint core accepts
// from buffer producers.
//
// Formats are identified by their DRM fourcc code. Each entry records
// bit depth, plane layout and sub-sampling, the shader variant used to
// sample it, and, for alpha-bearing formats, an opaque substitute that
// discards the alpha channel.
package pixfmt

import "fmt"

// fourcc builds a DRM fourcc code from its four characters.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Known format codes.
var (
	ARGB8888    = fourcc('A', 'R', '2', '4')
	XRGB8888    = fourcc('X', 'R', '2', '4')
	ABGR8888    = fourcc('A', 'B', '2', '4')
	XBGR8888    = fourcc('X', 'B', '2', '4')
	RGB565      = fourcc('R', 'G', '1', '6')
	ARGB2101010 = fourcc('A', 'R', '3', '0')
	XRGB2101010 = fourcc('X', 'R', '3', '0')
	R8          = fourcc('R', '8', ' ', ' ')
	GR88        = fourcc('G', 'R', '8', '8')
	NV12        = fourcc('N', 'V', '1', '2')
	NV16        = fourcc('N', 'V', '1', '6')
	YUV420      = fourcc('Y', 'U', '1', '2')
	YUV444      = fourcc('Y', 'U', '2', '4')
	YUYV        = fourcc('Y', 'U', 'Y', 'V')
	XYUV8888    = fourcc('X', 'Y', 'U', 'V')
)

// Variant selects the shader used to sample a buffer of this format.
type Variant uint8

const (
	// VariantNone marks a buffer the renderer cannot sample.
	VariantNone Variant = iota

	// VariantSolid draws a single premultiplied color, no sampling.
	VariantSolid

	// VariantRGBA samples one texture with alpha.
	VariantRGBA

	// VariantRGBX samples one texture and forces alpha to 1.
	VariantRGBX

	// VariantExternal samples an imported external image.
	VariantExternal

	// VariantYUV samples luma plus one interleaved chroma plane (NV12).
	VariantYUV

	// VariantYU_V samples luma plus two separate chroma planes (YUV420).
	VariantYU_V

	// VariantYXUXV samples packed YUYV as two views of one plane.
	VariantYXUXV

	// VariantXYUV samples packed XYUV from a single plane.
	VariantXYUV
)

// String returns a human-readable name for the variant.
func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantSolid:
		return "solid"
	case VariantRGBA:
		return "rgba"
	case VariantRGBX:
		return "rgbx"
	case VariantExternal:
		return "external"
	case VariantYUV:
		return "y_uv"
	case VariantYU_V:
		return "y_u_v"
	case VariantYXUXV:
		return "y_xuxv"
	case VariantXYUV:
		return "xyuv"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(v))
	}
}

// TexelKind describes the storage of one texture plane, independent of
// any particular GPU API. Backends map it to their own format tokens.
type TexelKind uint8

const (
	// TexelRGBA8 is four 8-bit channels in R, G, B, A memory order.
	TexelRGBA8 TexelKind = iota

	// TexelBGRA8 is four 8-bit channels in B, G, R, A memory order,
	// the little-endian layout of the ARGB fourccs.
	TexelBGRA8

	// TexelRGB565 is packed 16-bit RGB.
	TexelRGB565

	// TexelRGB10A2 is packed 10-bit RGB with 2-bit alpha.
	TexelRGB10A2

	// TexelR8 is a single 8-bit channel.
	TexelR8

	// TexelRG88 is two 8-bit channels.
	TexelRG88

	// TexelF16 is four half-float channels, used for the shadow target.
	TexelF16
)

// BytesPerTexel returns the storage size of one texel of this kind.
func (k TexelKind) BytesPerTexel() int32 {
	switch k {
	case TexelR8:
		return 1
	case TexelRGB565, TexelRG88:
		return 2
	case TexelF16:
		return 8
	default:
		return 4
	}
}

// Plane describes one plane of a format: its texel kind and chroma
// sub-sampling denominators relative to the full buffer size.
type Plane struct {
	Texel TexelKind
	HSub  int32
	VSub  int32
}

// Format is an immutable pixel-format descriptor.
type Format struct {
	// Code is the DRM fourcc identifying the format.
	Code uint32

	// Name is the short lowercase format name.
	Name string

	// BPP is the bits per pixel of plane 0.
	BPP int32

	// Opaque is true when the format carries no alpha channel.
	Opaque bool

	// OpaqueCode is the code of the alpha-discarding substitute,
	// or 0 when none exists.
	OpaqueCode uint32

	// Variant is the shader variant used to sample this format.
	Variant Variant

	// Planes lists the texture planes the format decomposes into.
	Planes []Plane

	// PackedViews is true when the entries of Planes are sampling
	// views of one packed byte plane rather than separate byte planes.
	// Every view starts at the plane's byte offset 0.
	PackedViews bool
}

// formats is the registry, keyed by fourcc.
var formats map[uint32]*Format

func register(f *Format) {
	formats[f.Code] = f
}

func init() {
	formats = make(map[uint32]*Format)

	register(&Format{
		Code: ARGB8888, Name: "argb8888", BPP: 32,
		OpaqueCode: XRGB8888, Variant: VariantRGBA,
		Planes: []Plane{{Texel: TexelBGRA8, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: XRGB8888, Name: "xrgb8888", BPP: 32, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelBGRA8, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: ABGR8888, Name: "abgr8888", BPP: 32,
		OpaqueCode: XBGR8888, Variant: VariantRGBA,
		Planes: []Plane{{Texel: TexelRGBA8, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: XBGR8888, Name: "xbgr8888", BPP: 32, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelRGBA8, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: RGB565, Name: "rgb565", BPP: 16, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelRGB565, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: ARGB2101010, Name: "argb2101010", BPP: 32,
		OpaqueCode: XRGB2101010, Variant: VariantRGBA,
		Planes: []Plane{{Texel: TexelRGB10A2, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: XRGB2101010, Name: "xrgb2101010", BPP: 32, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelRGB10A2, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: R8, Name: "r8", BPP: 8, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelR8, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: GR88, Name: "gr88", BPP: 16, Opaque: true,
		Variant: VariantRGBX,
		Planes:  []Plane{{Texel: TexelRG88, HSub: 1, VSub: 1}},
	})
	register(&Format{
		Code: NV12, Name: "nv12", BPP: 8, Opaque: true,
		Variant: VariantYUV,
		Planes: []Plane{
			{Texel: TexelR8, HSub: 1, VSub: 1},
			{Texel: TexelRG88, HSub: 2, VSub: 2},
		},
	})
	register(&Format{
		Code: NV16, Name: "nv16", BPP: 8, Opaque: true,
		Variant: VariantYUV,
		Planes: []Plane{
			{Texel: TexelR8, HSub: 1, VSub: 1},
			{Texel: TexelRG88, HSub: 2, VSub: 1},
		},
	})
	register(&Format{
		Code: YUV420, Name: "yuv420", BPP: 8, Opaque: true,
		Variant: VariantYU_V,
		Planes: []Plane{
			{Texel: TexelR8, HSub: 1, VSub: 1},
			{Texel: TexelR8, HSub: 2, VSub: 2},
			{Texel: TexelR8, HSub: 2, VSub: 2},
		},
	})
	register(&Format{
		Code: YUV444, Name: "yuv444", BPP: 8, Opaque: true,
		Variant: VariantYU_V,
		Planes: []Plane{
			{Texel: TexelR8, HSub: 1, VSub: 1},
			{Texel: TexelR8, HSub: 1, VSub: 1},
			{Texel: TexelR8, HSub: 1, VSub: 1},
		},
	})
	register(&Format{
		Code: YUYV, Name: "yuyv", BPP: 16, Opaque: true,
		Variant: VariantYXUXV,
		Planes: []Plane{
			{Texel: TexelRG88, HSub: 1, VSub: 1},
			{Texel: TexelRGBA8, HSub: 2, VSub: 1},
		},
		PackedViews: true,
	})
	register(&Format{
		Code: XYUV8888, Name: "xyuv8888", BPP: 32, Opaque: true,
		Variant: VariantXYUV,
		Planes:  []Plane{{Texel: TexelRGBA8, HSub: 1, VSub: 1}},
	})
}

// ByCode looks up a format by its fourcc code.
// Returns nil for unknown codes; callers reject the buffer.
func ByCode(code uint32) *Format {
	return formats[code]
}

// OpaqueSubstitute returns the alpha-discarding variant of f, or nil
// when none exists. Used to allow scan-out of alpha-bearing buffers
// whose opaque region covers the full surface.
func (f *Format) OpaqueSubstitute() *Format {
	if f.OpaqueCode == 0 {
		return nil
	}
	return formats[f.OpaqueCode]
}

// PlaneCount returns the number of texture planes.
func (f *Format) PlaneCount() int {
	return len(f.Planes)
}

// HSubsampling returns the horizontal sub-sampling denominator of a plane.
func (f *Format) HSubsampling(plane int) int32 {
	return f.Planes[plane].HSub
}

// VSubsampling returns the vertical sub-sampling denominator of a plane.
func (f *Format) VSubsampling(plane int) int32 {
	return f.Planes[plane].VSub
}

// PlaneSize returns the texel dimensions of a plane for a buffer of
// logical size w by h. Sub-sampled dimensions round up so that odd-sized
// buffers keep their trailing chroma samples.
func (f *Format) PlaneSize(plane int, w, h int32) (pw, ph int32) {
	p := f.Planes[plane]
	return (w + p.HSub - 1) / p.HSub, (h + p.VSub - 1) / p.VSub
}

// String returns the format name.
func (f *Format) String() string { return f.Name }
