package repaint

import (
	"fmt"
	"log/slog"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// maxBatchVertices keeps indexed sub-mesh batches inside the 16-bit
// index range with room for the two degenerate chain indices.
const maxBatchVertices = 65533

// frameContext carries the per-repaint compositing state: the chosen
// renderbuffer's damage and the vertex/index accumulators reused
// across nodes.
type frameContext struct {
	r     *Renderer
	o     *OutputState
	debug DebugFlags

	// damage is the region being repainted, in output coordinates.
	damage *region.Region

	verts   []backend.Vertex
	indices []uint16
	poly    []region.Vec2

	nodeDamage region.Region
	opaque     region.Region
	blend      region.Region
	quads      []region.Quad
}

// compositeNodes draws the node list back to front, restricted to
// damage. Only plane-0 nodes are composited; other planes are handled
// outside the renderer.
func (fc *frameContext) compositeNodes(nodes []PaintNode) {
	for i := range nodes {
		fc.paintNode(&nodes[i])
	}
}

func (fc *frameContext) paintNode(n *PaintNode) {
	if n.Plane != 0 {
		return
	}
	s := n.Surface
	sampleable := s != nil && s.state != nil && s.state.variant != pixfmt.VariantNone
	if !sampleable && !n.Placeholder {
		return
	}

	fc.nodeDamage.Copy(fc.damage)
	fc.nodeDamage.Intersect(&n.Visible)
	if fc.nodeDamage.Empty() {
		return
	}

	if sampleable && s.acquireFd >= 0 {
		if err := fc.r.backend.WaitFence(s.acquireFd); err != nil {
			err = fmt.Errorf("%w: %v", ErrAcquireFence, err)
			Logger().Error("acquire fence wait failed, skipping surface",
				slog.Any("error", err))
			s.acquireFd = -1
			if s.syncError != nil {
				s.syncError(err)
			}
			return
		}
	}

	filter := backend.FilterNearest
	if n.NeedsFilter || !n.ViewTransform.PixelExact() {
		filter = backend.FilterLinear
	}

	bounds := region.Rect{X0: 0, Y0: 0, X1: n.SurfaceW, Y1: n.SurfaceH}
	if n.FullyOpaque {
		fc.opaque.Clear()
		fc.opaque.UnionRect(bounds)
	} else {
		fc.opaque.Copy(&n.Opaque)
		fc.opaque.IntersectRect(bounds)
	}
	if n.Scissor != nil {
		fc.opaque.Intersect(n.Scissor)
	}
	fc.blend.Clear()
	fc.blend.UnionRect(bounds)
	if n.Scissor != nil {
		fc.blend.Intersect(n.Scissor)
	}
	fc.blend.Subtract(&fc.opaque)
	if fc.opaque.Empty() && fc.blend.Empty() {
		return
	}

	fc.damageQuads(n)
	if len(fc.quads) == 0 {
		return
	}

	cfg := fc.configForNode(n, filter)

	if !fc.opaque.Empty() {
		oc := cfg
		// Node-level fade still blends the opaque region.
		oc.Blend = n.Alpha < 1
		// Sampling junk alpha from producers that never clear it is a
		// real hazard; force alpha to one over declared-opaque pixels.
		if oc.Variant == pixfmt.VariantRGBA {
			oc.Variant = pixfmt.VariantRGBX
		}
		if fc.debug&DebugOpaque != 0 {
			oc.Tint = [4]float32{0.4, 1, 0.4, 1}
		}
		fc.drawRegion(&oc, fc.opaque.Rects())
	}
	if !fc.blend.Empty() {
		bc := cfg
		bc.Blend = true
		if fc.debug&DebugOpaque != 0 {
			bc.Tint = [4]float32{1, 0.4, 1, 1}
		}
		fc.drawRegion(&bc, fc.blend.Rects())
	}

	if s != nil {
		s.usedThisFrame = true
	}
}

// damageQuads transforms the node's share of the frame damage into
// surface-space quads. Bands are compressed first once the rect count
// makes the extra rects outweigh the overdraw of merged bands.
func (fc *frameContext) damageQuads(n *PaintNode) {
	rects := fc.nodeDamage.Rects()
	if len(rects) >= 4 {
		rects = region.CompressBands(rects)
	}
	inv := n.ViewTransform.Invert()
	fc.quads = fc.quads[:0]
	for _, rc := range rects {
		var q region.Quad
		x0, y0 := inv.Apply(float64(rc.X0), float64(rc.Y0))
		x1, y1 := inv.Apply(float64(rc.X1), float64(rc.Y0))
		x2, y2 := inv.Apply(float64(rc.X1), float64(rc.Y1))
		x3, y3 := inv.Apply(float64(rc.X0), float64(rc.Y1))
		q.V[0] = region.Vec2{X: float32(x0), Y: float32(y0)}
		q.V[1] = region.Vec2{X: float32(x1), Y: float32(y1)}
		q.V[2] = region.Vec2{X: float32(x2), Y: float32(y2)}
		q.V[3] = region.Vec2{X: float32(x3), Y: float32(y3)}
		q.AxisAligned = n.ValidTransform
		fc.quads = append(fc.quads, q)
	}
}

// configForNode builds the draw description shared by the node's
// passes. A color transform that cannot be materialized degrades the
// node to its flat replacement color and notifies the producer.
func (fc *frameContext) configForNode(n *PaintNode, filter backend.Filter) backend.ShaderConfig {
	viewM4 := n.ViewTransform.mat4()
	cfg := backend.ShaderConfig{
		Texcoord:        backend.TexcoordSurface,
		Projection:      fc.o.outputMatrix.Mul(&viewM4),
		ProjectionFlags: n.ViewTransform.flags(),
		SurfaceToBuffer: backend.Mat3Identity,
		Alpha:           n.Alpha,
		Filter:          filter,
		Wireframe:       fc.debug&DebugWireframe != 0,
	}
	if fc.debug&DebugDamage != 0 {
		cfg.Tint = [4]float32{1, 0.4, 0.4, 1}
	}

	if n.Placeholder {
		cfg.Variant = pixfmt.VariantSolid
		cfg.SolidColor = n.PlaceholderColor
		cfg.Color.Identity = true
		return cfg
	}

	st := n.Surface.state
	cfg.Variant = st.variant
	switch st.variant {
	case pixfmt.VariantSolid:
		cfg.SolidColor = st.solid
	default:
		toBuffer := Scale(1/float64(st.w), 1/float64(st.h)).Multiply(n.SurfaceToBuffer)
		cfg.SurfaceToBuffer = toBuffer.mat3()
		for i := 0; i < len(st.textures) && i < backend.MaxTexturePlanes; i++ {
			cfg.Textures[i] = st.textures[i]
		}
	}

	uniforms, err := fc.r.binder.bind(n.ColorTransform)
	if err != nil {
		Logger().Error("color transform bind failed, drawing replacement color",
			slog.Any("error", err))
		if n.Surface.shaderError != nil {
			n.Surface.shaderError(err)
		}
		cfg.Variant = pixfmt.VariantSolid
		cfg.SolidColor = n.PlaceholderColor
		cfg.Textures = [backend.MaxTexturePlanes]backend.Texture{}
		cfg.Color = backend.ColorUniforms{Identity: true}
		return cfg
	}
	cfg.Color = uniforms
	return cfg
}

// drawRegion clips every damage quad against every region rect,
// triangulates the clipped polygons as one chained triangle strip and
// flushes batches before the index range overflows. Per-rect draw
// calls are an order of magnitude slower on tiled GPUs, so batching
// here is load-bearing.
func (fc *frameContext) drawRegion(cfg *backend.ShaderConfig, rects []region.Rect) {
	for qi := range fc.quads {
		for _, rc := range rects {
			fc.poly = region.ClipQuadBox(fc.poly[:0], &fc.quads[qi], rc)
			nv := len(fc.poly)
			if nv < 3 {
				continue
			}
			if len(fc.verts)+nv > maxBatchVertices {
				fc.flush(cfg)
			}
			base := uint16(len(fc.verts))
			if len(fc.indices) > 0 {
				// Two degenerate indices stitch sub-meshes into one
				// strip.
				fc.indices = append(fc.indices, fc.indices[len(fc.indices)-1], base)
			}
			for _, v := range fc.poly {
				fc.verts = append(fc.verts, backend.Vertex{X: v.X, Y: v.Y})
			}
			// Zigzag first, second, last, third, second-last so each
			// strip triangle stays inside the convex polygon.
			fc.indices = append(fc.indices, base)
			lo, hi := 1, nv-1
			for lo <= hi {
				fc.indices = append(fc.indices, base+uint16(lo))
				lo++
				if hi >= lo {
					fc.indices = append(fc.indices, base+uint16(hi))
					hi--
				}
			}
		}
	}
	fc.flush(cfg)
}

func (fc *frameContext) flush(cfg *backend.ShaderConfig) {
	if len(fc.indices) == 0 {
		return
	}
	if err := fc.r.backend.Draw(cfg, fc.verts, fc.indices); err != nil {
		Logger().Error("draw failed", slog.Any("error", err))
	}
	fc.o.drawCalls++
	fc.verts = fc.verts[:0]
	fc.indices = fc.indices[:0]
}
