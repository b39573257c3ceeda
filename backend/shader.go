package backend

import "github.com/gocomp/repaint/pixfmt"

// MaxTexturePlanes is the most texture inputs a shader variant samples
// (three-plane YUV).
const MaxTexturePlanes = 3

// Filter selects the texture sampling filter.
type Filter uint8

const (
	// FilterNearest samples the nearest texel.
	FilterNearest Filter = iota

	// FilterLinear samples with bilinear interpolation.
	FilterLinear
)

// TexcoordSource selects where fragment texture coordinates come from.
type TexcoordSource uint8

const (
	// TexcoordSurface derives texcoords from the surface-to-buffer
	// transform applied to interpolated surface positions.
	TexcoordSurface TexcoordSource = iota

	// TexcoordSupplied uses explicitly supplied coordinates, as in the
	// shadow blit.
	TexcoordSupplied
)

// Mat3 is a row-major 3x3 matrix for 2D affine transforms.
type Mat3 [9]float32

// Mat3Identity is the identity transform.
var Mat3Identity = Mat3{
	1, 0, 0,
	0, 1, 0,
	0, 0, 1,
}

// Apply transforms the point (x, y).
func (m *Mat3) Apply(x, y float32) (float32, float32) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Mat4 is a column-major 4x4 projection matrix.
type Mat4 [16]float32

// Mat4Identity is the identity projection.
var Mat4Identity = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Apply transforms the point (x, y) through the projection, ignoring
// depth.
func (m *Mat4) Apply(x, y float32) (float32, float32) {
	return m[0]*x + m[4]*y + m[12], m[1]*x + m[5]*y + m[13]
}

// Mul returns m times o.
func (m *Mat4) Mul(o *Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * o[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// TransformFlags tag what a projection matrix is composed of, letting
// backends pick cheaper vertex paths.
type TransformFlags uint8

const (
	// TransformTranslate marks a pure translation component.
	TransformTranslate TransformFlags = 1 << iota

	// TransformScale marks a scale component.
	TransformScale

	// TransformRotate marks rotation; axis alignment is lost.
	TransformRotate
)

// ColorUniforms carries the materialized color-pipeline inputs of a
// draw: optional pre/post 1D curves and an optional 3D LUT, already
// bound as textures by the color-transform binder.
type ColorUniforms struct {
	// Identity is set when the transform is a no-op and the shader
	// skips the color pipeline entirely.
	Identity bool

	// PreCurve and PostCurve are Nx1 single-channel lookup textures
	// applied before and after the 3D LUT. Nil when absent.
	PreCurve  Texture
	PostCurve Texture

	// LUT3D is the 3D lookup texture, stored as size*size slices of
	// size x size texels. Nil when absent.
	LUT3D Texture

	// LUTSize is the per-axis sample count of LUT3D.
	LUTSize int32

	// Scale and Offset remap LUT coordinates so samples land on texel
	// centers: coord = in*Scale + Offset.
	Scale  float32
	Offset float32
}

// ShaderConfig is the immutable description of one draw call. The
// compositor fills one per paint pass and hands it to Backend.Draw;
// backends treat it as read-only.
type ShaderConfig struct {
	// Variant selects the sampling shader.
	Variant pixfmt.Variant

	// Texcoord selects the texcoord source.
	Texcoord TexcoordSource

	// Projection maps output surface coordinates to clip space.
	Projection Mat4

	// ProjectionFlags tag the composition of Projection.
	ProjectionFlags TransformFlags

	// SurfaceToBuffer maps surface coordinates to normalized buffer
	// coordinates, with the y-flip built in when the buffer origin is
	// bottom-left.
	SurfaceToBuffer Mat3

	// Alpha is the node-level fade applied on top of sampled alpha.
	Alpha float32

	// Filter is the texture sampling filter.
	Filter Filter

	// Blend enables source-over blending; when false the draw
	// overwrites the destination.
	Blend bool

	// Textures are the input planes, Variant deciding how many.
	Textures [MaxTexturePlanes]Texture

	// SolidColor is the premultiplied color for VariantSolid and for
	// direct-display placeholders.
	SolidColor [4]float32

	// Color is the materialized color transform.
	Color ColorUniforms

	// Tint is a debug overlay color multiplied into the result.
	// All-zero means no tint.
	Tint [4]float32

	// Wireframe enables the debug wireframe overlay.
	Wireframe bool
}

// NumPlanes returns the number of texture inputs the variant samples.
func (c *ShaderConfig) NumPlanes() int {
	switch c.Variant {
	case pixfmt.VariantSolid, pixfmt.VariantNone:
		return 0
	case pixfmt.VariantYUV, pixfmt.VariantYXUXV:
		return 2
	case pixfmt.VariantYU_V:
		return 3
	default:
		return 1
	}
}
