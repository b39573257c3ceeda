package soft

import (
	"math"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// rasterContext is the destination of one draw pass.
type rasterContext struct {
	fb   *pixmap
	vp   region.Rect // composition area, top-left-origin coordinates
	fbH  int32
	flip bool // bottom-left-origin destination, memory rows inverted
}

// put writes one fragment, source-over when blend is set. Coordinates
// are logical top-left-origin; the memory row is inverted for flipped
// destinations.
func (rc *rasterContext) put(x, y int32, c [4]float32, blend bool) {
	my := y
	if rc.flip {
		my = rc.fbH - 1 - y
	}
	if blend && c[3] < 1 {
		d := rc.fb.texelAt(x, my)
		inv := 1 - c[3]
		c[0] += d[0] * inv
		c[1] += d[1] * inv
		c[2] += d[2] * inv
		c[3] += d[3] * inv
	}
	rc.fb.setTexel(x, my, c)
}

type screenVertex struct {
	px, py float32 // pixel coordinates, top-left origin
	su, sv float32 // surface coordinates, interpolated for sampling
}

// drawStrip rasterizes a triangle strip. Triangles repeating an index
// are degenerate separators between chained sub-meshes and are skipped.
func (rc *rasterContext) drawStrip(cfg *backend.ShaderConfig, verts []backend.Vertex, indices []uint16) {
	vpW := float32(rc.vp.Width())
	vpH := float32(rc.vp.Height())
	mapped := make([]screenVertex, len(verts))
	for i, v := range verts {
		cx, cy := cfg.Projection.Apply(v.X, v.Y)
		mapped[i] = screenVertex{
			px: float32(rc.vp.X0) + (cx+1)*0.5*vpW,
			py: float32(rc.vp.Y0) + (1-cy)*0.5*vpH,
			su: v.X,
			sv: v.Y,
		}
	}
	for i := 0; i+2 < len(indices); i++ {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		if a == b || b == c || a == c {
			continue
		}
		rc.triangle(cfg, mapped[a], mapped[b], mapped[c])
	}
}

// triangle fills one triangle with top-left-rule coverage so that
// abutting triangles sharing an edge touch every pixel exactly once.
func (rc *rasterContext) triangle(cfg *backend.ShaderConfig, v0, v1, v2 screenVertex) {
	// Orient clockwise in y-down screen space.
	area := (v1.px-v0.px)*(v2.py-v0.py) - (v1.py-v0.py)*(v2.px-v0.px)
	if area == 0 {
		return
	}
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}

	bounds := region.Rect{
		X0: int32(math.Floor(float64(minf3(v0.px, v1.px, v2.px)))),
		Y0: int32(math.Floor(float64(minf3(v0.py, v1.py, v2.py)))),
		X1: int32(math.Ceil(float64(maxf3(v0.px, v1.px, v2.px)))),
		Y1: int32(math.Ceil(float64(maxf3(v0.py, v1.py, v2.py)))),
	}
	bounds = bounds.Intersect(rc.vp).Intersect(region.Rect{X0: 0, Y0: 0, X1: rc.fb.w, Y1: rc.fb.h})
	if bounds.Empty() {
		return
	}

	blend := cfg.Blend
	for y := bounds.Y0; y < bounds.Y1; y++ {
		fy := float32(y) + 0.5
		for x := bounds.X0; x < bounds.X1; x++ {
			fx := float32(x) + 0.5
			e0 := edge(v1, v2, fx, fy)
			e1 := edge(v2, v0, fx, fy)
			e2 := edge(v0, v1, fx, fy)
			if !covered(e0, v1, v2) || !covered(e1, v2, v0) || !covered(e2, v0, v1) {
				continue
			}
			w0 := e0 / area
			w1 := e1 / area
			w2 := 1 - w0 - w1
			su := w0*v0.su + w1*v1.su + w2*v2.su
			sv := w0*v0.sv + w1*v1.sv + w2*v2.sv
			c := shadeFragment(cfg, su, sv)
			if cfg.Wireframe && minf3(e0, e1, e2) < area*0.04 {
				c = [4]float32{1, 1, 1, 1}
			}
			rc.put(x, y, c, blend)
		}
	}
}

// edge evaluates the edge function of a->b at (px, py). Positive means
// the point lies to the left when walking a->b in y-down space.
func edge(a, b screenVertex, px, py float32) float32 {
	return (b.px-a.px)*(py-a.py) - (b.py-a.py)*(px-a.px)
}

// covered applies the top-left fill rule to one edge result.
func covered(e float32, a, b screenVertex) bool {
	if e > 0 {
		return true
	}
	if e < 0 {
		return false
	}
	dx := b.px - a.px
	dy := b.py - a.py
	return (dy == 0 && dx > 0) || dy < 0
}

// shadeFragment runs the fragment pipeline for one covered pixel:
// variant sampling, color transform, node fade and debug tint. The
// returned color is premultiplied.
func shadeFragment(cfg *backend.ShaderConfig, su, sv float32) [4]float32 {
	bu, bv := cfg.SurfaceToBuffer.Apply(su, sv)

	var c [4]float32
	switch cfg.Variant {
	case pixfmt.VariantSolid:
		c = cfg.SolidColor
	case pixfmt.VariantRGBX:
		c = sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
		c[3] = 1
	case pixfmt.VariantYUV:
		p0 := sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
		p1 := sampleTex(cfg.Textures[1], bu, bv, cfg.Filter)
		c = yuvToRGB(p0[0], p1[0], p1[1])
	case pixfmt.VariantYU_V:
		p0 := sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
		p1 := sampleTex(cfg.Textures[1], bu, bv, cfg.Filter)
		p2 := sampleTex(cfg.Textures[2], bu, bv, cfg.Filter)
		c = yuvToRGB(p0[0], p1[0], p2[0])
	case pixfmt.VariantYXUXV:
		p0 := sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
		p1 := sampleTex(cfg.Textures[1], bu, bv, cfg.Filter)
		c = yuvToRGB(p0[0], p1[1], p1[3])
	case pixfmt.VariantXYUV:
		// Little-endian XYUV8888 samples as [V, U, Y, X].
		p := sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
		c = yuvToRGB(p[2], p[1], p[0])
	default: // VariantRGBA, VariantExternal
		c = sampleTex(cfg.Textures[0], bu, bv, cfg.Filter)
	}

	c = applyColor(&cfg.Color, c)

	if cfg.Alpha < 1 {
		c[0] *= cfg.Alpha
		c[1] *= cfg.Alpha
		c[2] *= cfg.Alpha
		c[3] *= cfg.Alpha
	}

	if cfg.Tint != [4]float32{} {
		c[0] *= cfg.Tint[0]
		c[1] *= cfg.Tint[1]
		c[2] *= cfg.Tint[2]
		c[3] *= cfg.Tint[3]
	}
	return c
}

// sampleTex samples a texture at normalized coordinates with edge
// clamping.
func sampleTex(t backend.Texture, u, v float32, filter backend.Filter) [4]float32 {
	st, ok := t.(*texture)
	if !ok || st.pm == nil {
		return [4]float32{}
	}
	pm := st.pm
	if filter == backend.FilterNearest {
		x := int32(math.Floor(float64(u * float32(pm.w))))
		y := int32(math.Floor(float64(v * float32(pm.h))))
		return pm.texelAt(x, y)
	}
	fx := u*float32(pm.w) - 0.5
	fy := v*float32(pm.h) - 0.5
	x0 := int32(math.Floor(float64(fx)))
	y0 := int32(math.Floor(float64(fy)))
	ax := fx - float32(x0)
	ay := fy - float32(y0)
	c00 := pm.texelAt(x0, y0)
	c10 := pm.texelAt(x0+1, y0)
	c01 := pm.texelAt(x0, y0+1)
	c11 := pm.texelAt(x0+1, y0+1)
	var out [4]float32
	for i := 0; i < 4; i++ {
		top := c00[i] + (c10[i]-c00[i])*ax
		bot := c01[i] + (c11[i]-c01[i])*ax
		out[i] = top + (bot-top)*ay
	}
	return out
}

// yuvToRGB converts limited-range BT.601 Y'CbCr to an opaque RGB color.
func yuvToRGB(y, u, v float32) [4]float32 {
	yr := (y*255 - 16) / 219
	cb := (u*255 - 128) / 224
	cr := (v*255 - 128) / 224
	return [4]float32{
		clampf(yr+1.402*cr, 0, 1),
		clampf(yr-0.344136*cb-0.714136*cr, 0, 1),
		clampf(yr+1.772*cb, 0, 1),
		1,
	}
}

// applyColor runs the materialized color transform on the RGB channels.
func applyColor(u *backend.ColorUniforms, c [4]float32) [4]float32 {
	if u.Identity {
		return c
	}
	if u.PreCurve != nil {
		c[0] = curveSample(u.PreCurve, c[0])
		c[1] = curveSample(u.PreCurve, c[1])
		c[2] = curveSample(u.PreCurve, c[2])
	}
	if u.LUT3D != nil {
		c = lut3DSample(u, c)
	}
	if u.PostCurve != nil {
		c[0] = curveSample(u.PostCurve, c[0])
		c[1] = curveSample(u.PostCurve, c[1])
		c[2] = curveSample(u.PostCurve, c[2])
	}
	return c
}

// curveSample evaluates an Nx1 lookup texture with linear interpolation
// between texel centers.
func curveSample(t backend.Texture, in float32) float32 {
	st, ok := t.(*texture)
	if !ok || st.pm == nil {
		return in
	}
	pm := st.pm
	f := clampf(in, 0, 1) * float32(pm.w-1)
	x0 := int32(f)
	if x0 >= pm.w-1 {
		x0 = pm.w - 2
		if x0 < 0 {
			return pm.texelAt(0, 0)[0]
		}
	}
	a := f - float32(x0)
	v0 := pm.texelAt(x0, 0)[0]
	v1 := pm.texelAt(x0+1, 0)[0]
	return v0 + (v1-v0)*a
}

// lut3DSample evaluates the 3D lookup texture with trilinear
// interpolation. The texture packs blue slices side by side: texel
// (z*size + x, y) holds the output for lattice point (x, y, z) on the
// (red, green, blue) axes.
func lut3DSample(u *backend.ColorUniforms, c [4]float32) [4]float32 {
	st, ok := u.LUT3D.(*texture)
	if !ok || st.pm == nil {
		return c
	}
	size := u.LUTSize
	coord := func(in float32) (int32, float32) {
		t := clampf(in*u.Scale+u.Offset, 0, 1)*float32(size) - 0.5
		i := int32(math.Floor(float64(t)))
		if i < 0 {
			return 0, 0
		}
		if i >= size-1 {
			return size - 2, 1
		}
		return i, t - float32(i)
	}
	x0, ax := coord(c[0])
	y0, ay := coord(c[1])
	z0, az := coord(c[2])

	fetch := func(x, y, z int32) [4]float32 {
		return st.pm.texelAt(z*size+x, y)
	}
	lerp := func(a, b [4]float32, t float32) [4]float32 {
		return [4]float32{
			a[0] + (b[0]-a[0])*t,
			a[1] + (b[1]-a[1])*t,
			a[2] + (b[2]-a[2])*t,
			a[3] + (b[3]-a[3])*t,
		}
	}
	c00 := lerp(fetch(x0, y0, z0), fetch(x0+1, y0, z0), ax)
	c10 := lerp(fetch(x0, y0+1, z0), fetch(x0+1, y0+1, z0), ax)
	c01 := lerp(fetch(x0, y0, z0+1), fetch(x0+1, y0, z0+1), ax)
	c11 := lerp(fetch(x0, y0+1, z0+1), fetch(x0+1, y0+1, z0+1), ax)
	c0 := lerp(c00, c10, ay)
	c1 := lerp(c01, c11, ay)
	out := lerp(c0, c1, az)
	out[3] = c[3]
	return out
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minf3(a, b, c float32) float32 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func maxf3(a, b, c float32) float32 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}
