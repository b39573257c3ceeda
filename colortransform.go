package repaint

import (
	"fmt"
	"sync/atomic"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/internal/cache"
	"github.com/gocomp/repaint/internal/f16"
	"github.com/gocomp/repaint/pixfmt"
)

// ColorTransform describes how a node's colors map to the output
// space: optional pre- and post-curves around an optional 3D lookup
// table. The zero descriptor (and nil) mean identity.
//
// Transforms are immutable after creation and carry a stable identity
// the renderer caches bound GPU resources under.
type ColorTransform struct {
	// PreCurve and PostCurve are single-channel lookup curves, one
	// sample per entry, applied to each RGB channel. Nil means none.
	PreCurve  []float32
	PostCurve []float32

	// LUT3D holds LUTSize^3 RGB triples, red-fastest then green then
	// blue. Nil means none.
	LUT3D   []float32
	LUTSize int32

	id uint64
}

var colorTransformIDs atomic.Uint64

// NewColorTransform assigns the descriptor its cache identity. The
// caller must not mutate the sample slices afterwards.
func NewColorTransform(pre, post []float32, lut3D []float32, lutSize int32) *ColorTransform {
	return &ColorTransform{
		PreCurve:  pre,
		PostCurve: post,
		LUT3D:     lut3D,
		LUTSize:   lutSize,
		id:        colorTransformIDs.Add(1),
	}
}

// Identity reports whether the transform is a no-op.
func (t *ColorTransform) Identity() bool {
	return t == nil || (t.PreCurve == nil && t.PostCurve == nil && t.LUT3D == nil)
}

// boundTransform is a materialized transform: its curves and LUT
// uploaded as textures, ready to drop into a ShaderConfig.
type boundTransform struct {
	uniforms backend.ColorUniforms
	textures []backend.Texture
}

func (b *boundTransform) release() {
	for _, tex := range b.textures {
		tex.Close()
	}
	b.textures = nil
}

// colorBinder materializes color transforms and caches them by
// identity so LUTs are not re-uploaded every frame.
type colorBinder struct {
	backend backend.Backend
	cache   *cache.LRU[uint64, *boundTransform]
}

// boundTransformCacheSize bounds how many distinct transforms stay
// resident. Outputs and surfaces rarely use more than a handful.
const boundTransformCacheSize = 32

func newColorBinder(b backend.Backend) *colorBinder {
	return &colorBinder{
		backend: b,
		cache: cache.New(boundTransformCacheSize, func(_ uint64, bt *boundTransform) {
			bt.release()
		}),
	}
}

// bind returns shader uniforms for the transform, materializing and
// caching textures on first use.
func (cb *colorBinder) bind(t *ColorTransform) (backend.ColorUniforms, error) {
	if t.Identity() {
		return backend.ColorUniforms{Identity: true}, nil
	}
	if bt, ok := cb.cache.Get(t.id); ok {
		return bt.uniforms, nil
	}
	bt, err := cb.materialize(t)
	if err != nil {
		return backend.ColorUniforms{}, err
	}
	cb.cache.Put(t.id, bt)
	return bt.uniforms, nil
}

func (cb *colorBinder) materialize(t *ColorTransform) (*boundTransform, error) {
	bt := &boundTransform{}
	fail := func(what string, err error) (*boundTransform, error) {
		bt.release()
		return nil, fmt.Errorf("%w: %s: %v", ErrColorTransform, what, err)
	}

	if t.PreCurve != nil {
		tex, err := cb.uploadCurve(t.PreCurve, "color pre-curve")
		if err != nil {
			return fail("pre-curve", err)
		}
		bt.textures = append(bt.textures, tex)
		bt.uniforms.PreCurve = tex
	}
	if t.PostCurve != nil {
		tex, err := cb.uploadCurve(t.PostCurve, "color post-curve")
		if err != nil {
			return fail("post-curve", err)
		}
		bt.textures = append(bt.textures, tex)
		bt.uniforms.PostCurve = tex
	}
	if t.LUT3D != nil {
		size := t.LUTSize
		if int64(size)*int64(size)*int64(size)*3 != int64(len(t.LUT3D)) {
			return fail("3d lut", fmt.Errorf("%d samples for size %d", len(t.LUT3D), size))
		}
		tex, err := cb.backend.CreateTexture(backend.TextureDesc{
			Width: size * size, Height: size, Texel: pixfmt.TexelF16,
			Label: "color 3d lut",
		})
		if err != nil {
			return fail("3d lut", err)
		}
		// Pack blue slices side by side: texel (z*size+x, y) holds
		// lattice point (x, y, z).
		data := make([]byte, size*size*size*8)
		for z := int32(0); z < size; z++ {
			for y := int32(0); y < size; y++ {
				for x := int32(0); x < size; x++ {
					src := ((z*size+y)*size + x) * 3
					dst := (y*size*size + z*size + x) * 8
					putHalf(data[dst:], t.LUT3D[src])
					putHalf(data[dst+2:], t.LUT3D[src+1])
					putHalf(data[dst+4:], t.LUT3D[src+2])
					putHalf(data[dst+6:], 1)
				}
			}
		}
		if err := tex.Upload(data, size*size*8); err != nil {
			tex.Close()
			return fail("3d lut upload", err)
		}
		bt.textures = append(bt.textures, tex)
		bt.uniforms.LUT3D = tex
		bt.uniforms.LUTSize = size
		bt.uniforms.Scale = float32(size-1) / float32(size)
		bt.uniforms.Offset = 0.5 / float32(size)
	}
	return bt, nil
}

// uploadCurve materializes a 1D curve as an Nx1 half-float texture.
func (cb *colorBinder) uploadCurve(samples []float32, label string) (backend.Texture, error) {
	tex, err := cb.backend.CreateTexture(backend.TextureDesc{
		Width: int32(len(samples)), Height: 1, Texel: pixfmt.TexelF16,
		Label: label,
	})
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(samples)*8)
	for i, v := range samples {
		putHalf(data[i*8:], v)
		putHalf(data[i*8+2:], v)
		putHalf(data[i*8+4:], v)
		putHalf(data[i*8+6:], 1)
	}
	if err := tex.Upload(data, int32(len(samples))*8); err != nil {
		tex.Close()
		return nil, err
	}
	return tex, nil
}

func putHalf(dst []byte, v float32) {
	bits := f16.Bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
}
