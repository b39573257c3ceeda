package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gocomp/repaint/backend"
)

// compositeShaderWGSL is the single composition shader. Vertices carry
// output-space positions; texture coordinates are derived from the
// surface-to-buffer transform in the vertex stage. The fragment stage
// branches on the sampling variant and applies the color transform
// stages in order: input EOTF curve, 3D LUT, output curve.
const compositeShaderWGSL = `
struct Uniforms {
    proj: mat4x4<f32>,
    s2b0: vec4<f32>,
    s2b1: vec4<f32>,
    s2b2: vec4<f32>,
    solid_color: vec4<f32>,
    tint: vec4<f32>,
    color_scale: vec4<f32>,
    color_offset: vec4<f32>,
    // x: alpha, y: variant, z: lut size, w: color flags
    params: vec4<f32>,
};

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(1) var tex0: texture_2d<f32>;
@group(0) @binding(2) var tex1: texture_2d<f32>;
@group(0) @binding(3) var tex2: texture_2d<f32>;
@group(0) @binding(4) var pre_curve: texture_2d<f32>;
@group(0) @binding(5) var lut3d: texture_2d<f32>;
@group(0) @binding(6) var post_curve: texture_2d<f32>;
@group(0) @binding(7) var samp: sampler;

struct VertexOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) in_pos: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    out.pos = u.proj * vec4<f32>(in_pos, 0.0, 1.0);
    let b = vec3<f32>(
        dot(u.s2b0.xyz, vec3<f32>(in_pos, 1.0)),
        dot(u.s2b1.xyz, vec3<f32>(in_pos, 1.0)),
        dot(u.s2b2.xyz, vec3<f32>(in_pos, 1.0)),
    );
    out.uv = b.xy / b.z;
    return out;
}

fn curve_sample(t: texture_2d<f32>, v: vec3<f32>) -> vec3<f32> {
    let r = textureSampleLevel(t, samp, vec2<f32>(v.r, 0.5), 0.0).r;
    let g = textureSampleLevel(t, samp, vec2<f32>(v.g, 0.5), 0.0).g;
    let b = textureSampleLevel(t, samp, vec2<f32>(v.b, 0.5), 0.0).b;
    return vec3<f32>(r, g, b);
}

fn lut_sample(v: vec3<f32>) -> vec3<f32> {
    let n = u.params.z;
    let c = v * u.color_scale.xyz + u.color_offset.xyz;
    let z = c.z * n;
    let z0 = floor(z - 0.5);
    let f = z - 0.5 - z0;
    let a = textureSampleLevel(lut3d, samp, vec2<f32>((z0 + c.x) / n, c.y), 0.0).rgb;
    let b = textureSampleLevel(lut3d, samp, vec2<f32>((z0 + 1.0 + c.x) / n, c.y), 0.0).rgb;
    return mix(a, b, f);
}

fn yuv2rgb(yuv: vec3<f32>) -> vec4<f32> {
    // BT.601 limited range.
    let y = 1.16438 * (yuv.x - 0.0625);
    let su = yuv.y - 0.5;
    let sv = yuv.z - 0.5;
    return vec4<f32>(
        y + 1.59603 * sv,
        y - 0.39176 * su - 0.81297 * sv,
        y + 2.01723 * su,
        1.0,
    );
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let variant = i32(u.params.y);
    var color: vec4<f32>;
    switch variant {
        case 1: { // solid
            color = u.solid_color;
        }
        case 3: { // rgbx
            color = vec4<f32>(textureSampleLevel(tex0, samp, in.uv, 0.0).rgb, 1.0);
        }
        case 5: { // y + interleaved uv
            let y = textureSampleLevel(tex0, samp, in.uv, 0.0).r;
            let uv = textureSampleLevel(tex1, samp, in.uv, 0.0).rg;
            color = yuv2rgb(vec3<f32>(y, uv));
        }
        case 6: { // y + u + v
            let y = textureSampleLevel(tex0, samp, in.uv, 0.0).r;
            let cu = textureSampleLevel(tex1, samp, in.uv, 0.0).r;
            let cv = textureSampleLevel(tex2, samp, in.uv, 0.0).r;
            color = yuv2rgb(vec3<f32>(y, cu, cv));
        }
        case 8: { // packed xyuv
            let p = textureSampleLevel(tex0, samp, in.uv, 0.0);
            color = yuv2rgb(p.gba);
        }
        default: { // rgba, external, packed yuyv views
            color = textureSampleLevel(tex0, samp, in.uv, 0.0);
        }
    }

    let flags = i32(u.params.w);
    if (flags & 1) != 0 {
        color = vec4<f32>(curve_sample(pre_curve, color.rgb), color.a);
    }
    if (flags & 2) != 0 {
        color = vec4<f32>(lut_sample(color.rgb), color.a);
    }
    if (flags & 4) != 0 {
        color = vec4<f32>(curve_sample(post_curve, color.rgb), color.a);
    }

    color = color * u.params.x;
    if u.tint.w != 0.0 || u.tint.x != 0.0 || u.tint.y != 0.0 || u.tint.z != 0.0 {
        color = color * u.tint;
    }
    return color;
}
`

// shaderSet holds the compiled composition shader module.
type shaderSet struct {
	spirv  []uint32
	module hal.ShaderModule
}

// compile translates the WGSL source to SPIR-V with naga and creates
// the HAL shader module.
func (s *shaderSet) compile(device hal.Device) error {
	spirvBytes, err := naga.Compile(compositeShaderWGSL)
	if err != nil {
		return fmt.Errorf("wgpu: compile composite shader: %w", err)
	}
	s.spirv = make([]uint32, len(spirvBytes)/4)
	for i := range s.spirv {
		s.spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	module, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: "composite",
		Source: hal.ShaderSource{
			SPIRV: s.spirv,
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create shader module: %w", err)
	}
	s.module = module
	return nil
}

func (s *shaderSet) destroy(device hal.Device) {
	if s.module != nil {
		device.DestroyShaderModule(s.module)
		s.module = nil
	}
}

// pipelineKey identifies one render pipeline variant. The shader
// branches on sampling variant through uniforms, so only fixed-function
// state distinguishes pipelines: blending and the attachment width.
type pipelineKey struct {
	blend bool
	wide  bool // float attachment (shadow framebuffer)
}

// pipeline is one cached render pipeline.
type pipeline struct {
	id  uint64
	raw hal.RenderPipeline
}

var pipelineIDs atomic.Uint64

// pipelineFor returns the cached pipeline for the draw state, creating
// it on first use.
func (b *Backend) pipelineFor(cfg *backend.ShaderConfig, wide bool) *pipeline {
	key := pipelineKey{blend: cfg.Blend, wide: wide}
	if p, ok := b.pipelines[key]; ok {
		return p
	}
	// TODO: build the hal.RenderPipelineDescriptor and call
	// device.CreateRenderPipeline once gogpu/wgpu implements graphics
	// pipeline creation; until then the pipeline is identified by key
	// only and draw encoding is skipped at submit.
	p := &pipeline{id: pipelineIDs.Add(1)}
	b.pipelines[key] = p
	return p
}

func (p *pipeline) destroy(device hal.Device) {
	if p.raw != nil {
		device.DestroyRenderPipeline(p.raw)
		p.raw = nil
	}
}

func putFloat(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}
