package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"honnef.co/go/safeish"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// Output is a presentation target backed by a single persistent HAL
// texture. Content survives across frames, so the reported buffer age
// is a constant 1 after the first swap and repaints stay minimal.
type Output struct {
	b   *Backend
	tex *texture
	age uint32

	lastDamage []region.Rect
}

// NewOutput creates an output of the given size on b.
func NewOutput(b *Backend, w, h int32) (*Output, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	tex, err := b.createTexture(
		backend.TextureDesc{Width: w, Height: h, Texel: pixfmt.TexelRGBA8, Label: "output"},
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc,
	)
	if err != nil {
		return nil, err
	}
	return &Output{b: b, tex: tex}, nil
}

func (o *Output) MakeCurrent() error {
	if o.b == nil || !o.b.initialized {
		return backend.ErrNotInitialized
	}
	o.b.target = o
	return nil
}

func (o *Output) Swap(damage []region.Rect) error {
	if o.b.target != o {
		return backend.ErrNoCurrentTarget
	}
	o.age = 1
	return nil
}

func (o *Output) Flush() error {
	if o.b.target != o {
		return backend.ErrNoCurrentTarget
	}
	return nil
}

func (o *Output) Age() uint32 { return o.age }

func (o *Output) SetDamageRegion(rects []region.Rect) bool {
	o.lastDamage = append(o.lastDamage[:0], rects...)
	return true
}

func (o *Output) Origin() backend.Origin { return backend.OriginTopLeft }

func (o *Output) Size() (int32, int32) { return o.tex.w, o.tex.h }

// Close releases the output's texture. The output must not be current.
func (o *Output) Close() {
	if o.b != nil && o.b.target == o {
		o.b.target = nil
	}
	o.tex.Close()
}

func (b *Backend) BeginPass(desc backend.PassDesc) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if desc.Target == nil && b.target == nil {
		return backend.ErrNoCurrentTarget
	}
	if desc.Target != nil {
		if rt, ok := desc.Target.(*renderTarget); !ok || rt.tex.tex == nil {
			return backend.ErrTextureReleased
		}
	}
	b.pass = desc
	b.passOpen = true
	return nil
}

func (b *Backend) Draw(cfg *backend.ShaderConfig, verts []backend.Vertex, indices []uint16) error {
	if !b.passOpen {
		return backend.ErrNoCurrentTarget
	}
	for _, idx := range indices {
		if int(idx) >= len(verts) {
			return fmt.Errorf("wgpu: index %d out of range for %d vertices", idx, len(verts))
		}
	}

	vdata := safeish.SliceCast[[]byte](verts)
	if err := b.stageBuffer(&b.vertexBuf, &b.vertexCap, vdata,
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst, "composite-vertices"); err != nil {
		return err
	}
	idata := safeish.SliceCast[[]byte](indices)
	if err := b.stageBuffer(&b.indexBuf, &b.indexCap, idata,
		gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst, "composite-indices"); err != nil {
		return err
	}
	if err := b.stageBuffer(&b.uniformBuf, &b.uniformCap, packUniforms(cfg),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, "composite-uniforms"); err != nil {
		return err
	}

	wide := false
	if rt, ok := b.pass.Target.(*renderTarget); ok {
		wide = rt.tex.texel == pixfmt.TexelF16
	}
	_ = b.pipelineFor(cfg, wide)

	// TODO: encode the indexed triangle-strip draw through the HAL
	// render pass once gogpu/wgpu grows render pass recording (compute
	// passes are encoded today, graphics passes are not). Until then
	// the draw must fail loudly so hosts select the software backend
	// rather than present empty frames.
	return fmt.Errorf("wgpu: graphics pass encoding: %w", backend.ErrUnsupported)
}

func (b *Backend) EndPass() {
	b.passOpen = false
	b.pass = backend.PassDesc{}
}

// Blit draws src over the viewport of the current output through the
// config's color transform.
func (b *Backend) Blit(src backend.RenderTarget, cfg *backend.ShaderConfig, viewport region.Rect) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	if b.target == nil {
		return backend.ErrNoCurrentTarget
	}
	rt, ok := src.(*renderTarget)
	if !ok || rt.tex.tex == nil {
		return backend.ErrTextureReleased
	}
	if err := b.stageBuffer(&b.uniformBuf, &b.uniformCap, packUniforms(cfg),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, "blit-uniforms"); err != nil {
		return err
	}
	_ = b.pipelineFor(cfg, false)

	// TODO: same render pass gap as Draw; the blit is a two-triangle
	// strip over the viewport with tex0 = src.
	return fmt.Errorf("wgpu: graphics pass encoding: %w", backend.ErrUnsupported)
}

// stageBuffer writes data into buf, reallocating when it is too small.
func (b *Backend) stageBuffer(buf *hal.Buffer, capBytes *uint64, data []byte, usage gputypes.BufferUsage, label string) error {
	need := uint64(len(data))
	if need == 0 {
		return nil
	}
	if *buf == nil || *capBytes < need {
		if *buf != nil {
			b.device.DestroyBuffer(*buf)
			*buf = nil
			*capBytes = 0
		}
		nb, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: label,
			Size:  need,
			Usage: usage,
		})
		if err != nil {
			return fmt.Errorf("wgpu: create %s buffer: %w", label, err)
		}
		*buf = nb
		*capBytes = need
	}
	b.queue.WriteBuffer(*buf, 0, data)
	return nil
}

// packUniforms serializes the shader config into the uniform block
// layout of compositeShaderWGSL.
func packUniforms(cfg *backend.ShaderConfig) []byte {
	const size = 16*4 + 3*16 + 16 + 16 + 16 + 16 + 16
	out := make([]byte, size)
	o := 0
	for _, f := range cfg.Projection {
		putFloat(out[o:], f)
		o += 4
	}
	// Mat3 rows as vec4-aligned columns of the WGSL struct.
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			putFloat(out[o:], cfg.SurfaceToBuffer[row*3+col])
			o += 4
		}
		o += 4
	}
	for _, f := range cfg.SolidColor {
		putFloat(out[o:], f)
		o += 4
	}
	for _, f := range cfg.Tint {
		putFloat(out[o:], f)
		o += 4
	}
	scale := cfg.Color.Scale
	offset := cfg.Color.Offset
	putFloat(out[o:], scale)
	putFloat(out[o+4:], scale)
	putFloat(out[o+8:], scale)
	o += 16
	putFloat(out[o:], offset)
	putFloat(out[o+4:], offset)
	putFloat(out[o+8:], offset)
	o += 16
	putFloat(out[o:], cfg.Alpha)
	putFloat(out[o+4:], float32(cfg.Variant))
	putFloat(out[o+8:], float32(cfg.Color.LUTSize))
	putFloat(out[o+12:], float32(colorFlags(&cfg.Color)))
	return out
}

// colorFlags encodes which color transform stages are active.
func colorFlags(c *backend.ColorUniforms) int {
	if c.Identity {
		return 0
	}
	flags := 0
	if c.PreCurve != nil {
		flags |= 1
	}
	if c.LUT3D != nil {
		flags |= 2
	}
	if c.PostCurve != nil {
		flags |= 4
	}
	return flags
}
