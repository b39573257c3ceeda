package repaint

import (
	"math"

	"github.com/gocomp/repaint/backend"
)

// Matrix represents a 2D affine transformation.
// It uses a 2x3 matrix in row-major order:
//
//	| a  b  c |
//	| d  e  f |
//
// This represents the transformation:
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
type Matrix struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transformation matrix.
func Identity() Matrix {
	return Matrix{
		A: 1, B: 0, C: 0,
		D: 0, E: 1, F: 0,
	}
}

// Translate creates a translation matrix.
func Translate(x, y float64) Matrix {
	return Matrix{
		A: 1, B: 0, C: x,
		D: 0, E: 1, F: y,
	}
}

// Scale creates a scaling matrix.
func Scale(x, y float64) Matrix {
	return Matrix{
		A: x, B: 0, C: 0,
		D: 0, E: y, F: 0,
	}
}

// Rotate creates a rotation matrix (angle in radians).
func Rotate(angle float64) Matrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Matrix{
		A: cos, B: -sin, C: 0,
		D: sin, E: cos, F: 0,
	}
}

// Multiply multiplies two matrices (m * other).
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		A: m.A*other.A + m.B*other.D,
		B: m.A*other.B + m.B*other.E,
		C: m.A*other.C + m.B*other.F + m.C,
		D: m.D*other.A + m.E*other.D,
		E: m.D*other.B + m.E*other.E,
		F: m.D*other.C + m.E*other.F + m.F,
	}
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// Invert returns the inverse matrix.
// Returns the identity matrix if the matrix is not invertible.
func (m Matrix) Invert() Matrix {
	det := m.A*m.E - m.B*m.D
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return Matrix{
		A: m.E * invDet,
		B: -m.B * invDet,
		C: (m.B*m.F - m.C*m.E) * invDet,
		D: -m.D * invDet,
		E: m.A * invDet,
		F: (m.C*m.D - m.A*m.F) * invDet,
	}
}

// IsIdentity returns true if the matrix is the identity matrix.
func (m Matrix) IsIdentity() bool {
	return m.A == 1 && m.B == 0 && m.C == 0 &&
		m.D == 0 && m.E == 1 && m.F == 0
}

// IsTranslation returns true if the matrix is only a translation.
func (m Matrix) IsTranslation() bool {
	return m.A == 1 && m.B == 0 && m.D == 0 && m.E == 1
}

// AxisAligned reports whether the transform maps axis-aligned
// rectangles to axis-aligned rectangles: translation, scaling, flips
// and 90-degree rotations qualify.
func (m Matrix) AxisAligned() bool {
	return (m.B == 0 && m.D == 0) || (m.A == 0 && m.E == 0)
}

// PixelExact reports whether the transform maps texels one-to-one onto
// pixels, making nearest filtering lossless: integer translation of an
// axis-aligned transform with unit scale.
func (m Matrix) PixelExact() bool {
	if m.B != 0 || m.D != 0 {
		return false
	}
	if math.Abs(m.A) != 1 || math.Abs(m.E) != 1 {
		return false
	}
	return m.C == math.Trunc(m.C) && m.F == math.Trunc(m.F)
}

// mat3 converts to the backend's row-major 3x3 form.
func (m Matrix) mat3() backend.Mat3 {
	return backend.Mat3{
		float32(m.A), float32(m.B), float32(m.C),
		float32(m.D), float32(m.E), float32(m.F),
		0, 0, 1,
	}
}

// mat4 converts to the backend's column-major 4x4 projection form.
func (m Matrix) mat4() backend.Mat4 {
	out := backend.Mat4Identity
	out[0] = float32(m.A)
	out[4] = float32(m.B)
	out[12] = float32(m.C)
	out[1] = float32(m.D)
	out[5] = float32(m.E)
	out[13] = float32(m.F)
	return out
}

// flags classifies the transform for the backend's vertex paths.
func (m Matrix) flags() backend.TransformFlags {
	var f backend.TransformFlags
	if m.C != 0 || m.F != 0 {
		f |= backend.TransformTranslate
	}
	if m.B != 0 || m.D != 0 {
		f |= backend.TransformRotate
		return f
	}
	if m.A != 1 || m.E != 1 {
		f |= backend.TransformScale
	}
	return f
}
