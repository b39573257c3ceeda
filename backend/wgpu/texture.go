package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/internal/f16"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// texelFormat maps a texel kind to the HAL texture format it is stored
// as. Kinds without a native HAL format are widened on upload; see
// convertRows.
func texelFormat(k pixfmt.TexelKind) (format gputypes.TextureFormat, texelBytes int32, ok bool) {
	switch k {
	case pixfmt.TexelRGBA8:
		return gputypes.TextureFormatRGBA8Unorm, 4, true
	case pixfmt.TexelBGRA8:
		return gputypes.TextureFormatBGRA8Unorm, 4, true
	case pixfmt.TexelR8:
		return gputypes.TextureFormatR8Unorm, 1, true
	case pixfmt.TexelRG88, pixfmt.TexelRGB565:
		// Widened to RGBA8 on upload.
		return gputypes.TextureFormatRGBA8Unorm, 4, true
	case pixfmt.TexelRGB10A2, pixfmt.TexelF16:
		// Widened to float on upload to keep the extra precision.
		return gputypes.TextureFormatRGBA32Float, 16, true
	default:
		return gputypes.TextureFormatUndefined, 0, false
	}
}

// texture is one HAL texture plane.
type texture struct {
	b     *Backend
	tex   hal.Texture
	w, h  int32
	texel pixfmt.TexelKind

	// dstBytes is the per-texel size of the HAL storage, which differs
	// from the source texel size for widened kinds.
	dstBytes int32
}

func (b *Backend) CreateTexture(desc backend.TextureDesc) (backend.Texture, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return b.createTexture(desc, gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
}

func (b *Backend) createTexture(desc backend.TextureDesc, usage gputypes.TextureUsage) (*texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, backend.ErrInvalidDimensions
	}
	format, dstBytes, ok := texelFormat(desc.Texel)
	if !ok {
		return nil, fmt.Errorf("wgpu: texel kind %d: %w", desc.Texel, backend.ErrUnsupported)
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %dx%d: %w", desc.Width, desc.Height, err)
	}
	return &texture{
		b:        b,
		tex:      tex,
		w:        desc.Width,
		h:        desc.Height,
		texel:    desc.Texel,
		dstBytes: dstBytes,
	}, nil
}

func (t *texture) Width() int32  { return t.w }
func (t *texture) Height() int32 { return t.h }

func (t *texture) Upload(data []byte, stride int32) error {
	return t.UploadRect(data, stride, region.Rect{X0: 0, Y0: 0, X1: t.w, Y1: t.h})
}

func (t *texture) UploadRect(data []byte, stride int32, r region.Rect) error {
	if t.tex == nil {
		return backend.ErrTextureReleased
	}
	r = r.Intersect(region.Rect{X0: 0, Y0: 0, X1: t.w, Y1: t.h})
	if r.Empty() {
		return nil
	}
	srcBytes := t.texel.BytesPerTexel()
	need := int(r.Y1-1)*int(stride) + int(r.X1)*int(srcBytes)
	if need > len(data) {
		return fmt.Errorf("wgpu: upload of %v needs %d bytes, have %d", r, need, len(data))
	}
	rowTexels := r.Width()
	dstStride := rowTexels * t.dstBytes
	staged := make([]byte, int(dstStride)*int(r.Height()))
	for j := int32(0); j < r.Height(); j++ {
		srcRow := data[(r.Y0+j)*stride+r.X0*srcBytes:]
		convertRow(t.texel, staged[j*dstStride:(j+1)*dstStride], srcRow, rowTexels)
	}
	t.b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(r.X0), Y: uint32(r.Y0), Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		staged,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(dstStride),
			RowsPerImage: uint32(r.Height()),
		},
		&hal.Extent3D{
			Width:              uint32(rowTexels),
			Height:             uint32(r.Height()),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (t *texture) Close() {
	if t.tex != nil {
		t.b.device.DestroyTexture(t.tex)
		t.tex = nil
	}
}

// convertRow copies n texels from src into dst, widening kinds the HAL
// cannot store natively.
func convertRow(kind pixfmt.TexelKind, dst, src []byte, n int32) {
	switch kind {
	case pixfmt.TexelRGBA8, pixfmt.TexelBGRA8, pixfmt.TexelR8:
		copy(dst, src[:int(n)*int(kind.BytesPerTexel())])
	case pixfmt.TexelRG88:
		for i := int32(0); i < n; i++ {
			dst[i*4+0] = src[i*2+0]
			dst[i*4+1] = src[i*2+1]
			dst[i*4+2] = 0
			dst[i*4+3] = 0xff
		}
	case pixfmt.TexelRGB565:
		for i := int32(0); i < n; i++ {
			v := uint16(src[i*2]) | uint16(src[i*2+1])<<8
			r := uint8(v >> 11)
			g := uint8(v >> 5 & 0x3f)
			bl := uint8(v & 0x1f)
			dst[i*4+0] = r<<3 | r>>2
			dst[i*4+1] = g<<2 | g>>4
			dst[i*4+2] = bl<<3 | bl>>2
			dst[i*4+3] = 0xff
		}
	case pixfmt.TexelRGB10A2:
		for i := int32(0); i < n; i++ {
			v := uint32(src[i*4]) | uint32(src[i*4+1])<<8 |
				uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24
			putFloat(dst[i*16+0:], float32(v&0x3ff)/1023)
			putFloat(dst[i*16+4:], float32(v>>10&0x3ff)/1023)
			putFloat(dst[i*16+8:], float32(v>>20&0x3ff)/1023)
			putFloat(dst[i*16+12:], float32(v>>30)/3)
		}
	case pixfmt.TexelF16:
		for i := int32(0); i < n; i++ {
			for c := int32(0); c < 4; c++ {
				h := uint16(src[i*8+c*2]) | uint16(src[i*8+c*2+1])<<8
				putFloat(dst[i*16+c*4:], f16.From(h))
			}
		}
	}
}

// renderTarget is an offscreen framebuffer backed by a HAL texture.
type renderTarget struct {
	tex *texture
}

func (b *Backend) CreateRenderTarget(w, h int32, texel pixfmt.TexelKind) (backend.RenderTarget, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	tex, err := b.createTexture(
		backend.TextureDesc{Width: w, Height: h, Texel: texel, Label: "render-target"},
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopySrc,
	)
	if err != nil {
		return nil, err
	}
	return &renderTarget{tex: tex}, nil
}

func (rt *renderTarget) Width() int32             { return rt.tex.w }
func (rt *renderTarget) Height() int32            { return rt.tex.h }
func (rt *renderTarget) Texture() backend.Texture { return rt.tex }
func (rt *renderTarget) Close()                   { rt.tex.Close() }
