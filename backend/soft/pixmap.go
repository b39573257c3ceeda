// Package soft implements the repaint backend contract in pure Go.
//
// Textures are in-memory pixmaps, draws run through a scanline triangle
// rasterizer with per-variant samplers, and fences are eventfds that
// signal immediately because the software queue executes synchronously.
// The package exists so the full repaint pipeline can run and be tested
// without GPU hardware; it registers itself as the "soft" backend.
package soft

import (
	"math"

	"github.com/gocomp/repaint/pixfmt"
)

// pixmap is a rectangular texel buffer. 8- and 16-bit texel kinds are
// byte-backed; TexelF16 is kept as float32 quadruples, which loses
// nothing relative to half floats and keeps the blend math direct.
type pixmap struct {
	w, h  int32
	texel pixfmt.TexelKind
	pix   []byte    // nil for TexelF16
	f32   []float32 // 4 per texel, TexelF16 only
}

func newPixmap(w, h int32, texel pixfmt.TexelKind) *pixmap {
	p := &pixmap{w: w, h: h, texel: texel}
	if texel == pixfmt.TexelF16 {
		p.f32 = make([]float32, w*h*4)
	} else {
		p.pix = make([]byte, w*h*texel.BytesPerTexel())
	}
	return p
}

// stride returns the byte stride of one row.
func (p *pixmap) stride() int32 {
	return p.w * p.texel.BytesPerTexel()
}

// texelAt decodes the texel at (x, y) into normalized channels. Out of
// range coordinates clamp to the edge.
func (p *pixmap) texelAt(x, y int32) [4]float32 {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= p.w {
		x = p.w - 1
	}
	if y >= p.h {
		y = p.h - 1
	}

	if p.texel == pixfmt.TexelF16 {
		i := (y*p.w + x) * 4
		return [4]float32{p.f32[i], p.f32[i+1], p.f32[i+2], p.f32[i+3]}
	}

	i := (y*p.w + x) * p.texel.BytesPerTexel()
	switch p.texel {
	case pixfmt.TexelR8:
		return [4]float32{float32(p.pix[i]) / 255, 0, 0, 1}
	case pixfmt.TexelRG88:
		return [4]float32{float32(p.pix[i]) / 255, float32(p.pix[i+1]) / 255, 0, 1}
	case pixfmt.TexelRGB565:
		v := uint16(p.pix[i]) | uint16(p.pix[i+1])<<8
		return [4]float32{
			float32(v>>11&0x1f) / 31,
			float32(v>>5&0x3f) / 63,
			float32(v&0x1f) / 31,
			1,
		}
	case pixfmt.TexelRGB10A2:
		v := uint32(p.pix[i]) | uint32(p.pix[i+1])<<8 | uint32(p.pix[i+2])<<16 | uint32(p.pix[i+3])<<24
		return [4]float32{
			float32(v>>20&0x3ff) / 1023,
			float32(v>>10&0x3ff) / 1023,
			float32(v&0x3ff) / 1023,
			float32(v>>30&0x3) / 3,
		}
	case pixfmt.TexelBGRA8:
		return [4]float32{
			float32(p.pix[i+2]) / 255,
			float32(p.pix[i+1]) / 255,
			float32(p.pix[i]) / 255,
			float32(p.pix[i+3]) / 255,
		}
	default: // TexelRGBA8: channels in memory order
		return [4]float32{
			float32(p.pix[i]) / 255,
			float32(p.pix[i+1]) / 255,
			float32(p.pix[i+2]) / 255,
			float32(p.pix[i+3]) / 255,
		}
	}
}

// setTexel writes normalized channels to (x, y); no-op out of range.
func (p *pixmap) setTexel(x, y int32, c [4]float32) {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return
	}
	if p.texel == pixfmt.TexelF16 {
		i := (y*p.w + x) * 4
		p.f32[i], p.f32[i+1], p.f32[i+2], p.f32[i+3] = c[0], c[1], c[2], c[3]
		return
	}
	i := (y*p.w + x) * p.texel.BytesPerTexel()
	switch p.texel {
	case pixfmt.TexelBGRA8:
		p.pix[i] = unorm8(c[2])
		p.pix[i+1] = unorm8(c[1])
		p.pix[i+2] = unorm8(c[0])
		p.pix[i+3] = unorm8(c[3])
	default: // TexelRGBA8
		p.pix[i] = unorm8(c[0])
		p.pix[i+1] = unorm8(c[1])
		p.pix[i+2] = unorm8(c[2])
		p.pix[i+3] = unorm8(c[3])
	}
}

// unorm8 quantizes a normalized channel with rounding.
func unorm8(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(math.Round(float64(v) * 255))
}
