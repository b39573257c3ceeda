package soft

import (
	"fmt"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/internal/f16"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// texture is a pixmap-backed backend.Texture.
type texture struct {
	pm       *pixmap
	label    string
	released bool
}

func (t *texture) Width() int32  { return t.pm.w }
func (t *texture) Height() int32 { return t.pm.h }

func (t *texture) Upload(data []byte, stride int32) error {
	return t.UploadRect(data, stride, region.Rect{X0: 0, Y0: 0, X1: t.pm.w, Y1: t.pm.h})
}

func (t *texture) UploadRect(data []byte, stride int32, r region.Rect) error {
	if t.released {
		return backend.ErrTextureReleased
	}
	bpt := t.pm.texel.BytesPerTexel()
	r = r.Intersect(region.Rect{X0: 0, Y0: 0, X1: t.pm.w, Y1: t.pm.h})
	if r.Empty() {
		return nil
	}
	rowLen := r.Width() * bpt
	for y := r.Y0; y < r.Y1; y++ {
		src := y*stride + r.X0*bpt
		if src+rowLen > int32(len(data)) {
			return fmt.Errorf("soft: upload of %v overruns source of %d bytes", r, len(data))
		}
		if t.pm.texel == pixfmt.TexelF16 {
			// Half floats decode into the float32 backing store.
			for i := int32(0); i < r.Width()*4; i++ {
				o := src + i*2
				bits := uint16(data[o]) | uint16(data[o+1])<<8
				t.pm.f32[(y*t.pm.w+r.X0)*4+i] = f16.From(bits)
			}
			continue
		}
		dst := (y*t.pm.w + r.X0) * bpt
		copy(t.pm.pix[dst:dst+rowLen], data[src:src+rowLen])
	}
	return nil
}

func (t *texture) Close() {
	t.released = true
	t.pm = nil
}

// renderTarget is an offscreen framebuffer backed by a pixmap shared
// with its color-attachment texture.
type renderTarget struct {
	pm  *pixmap
	tex *texture
}

func (rt *renderTarget) Width() int32             { return rt.pm.w }
func (rt *renderTarget) Height() int32            { return rt.pm.h }
func (rt *renderTarget) Texture() backend.Texture { return rt.tex }
func (rt *renderTarget) Close()                   { rt.tex.Close(); rt.pm = nil }
