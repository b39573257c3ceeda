package region

// Vec2 is a point in continuous surface coordinates.
type Vec2 struct {
	X, Y float32
}

// Quad is a convex quadrilateral with vertices in clockwise order.
type Quad struct {
	V [4]Vec2
	// AxisAligned is set by the caller when the quad is known to be
	// axis-aligned in surface space, enabling the clamp fast path.
	AxisAligned bool
}

// MaxClipVertices is the largest number of vertices ClipQuadBox can
// produce: a convex quad clipped against four edges.
const MaxClipVertices = 8

// ClipQuadBox intersects a convex quadrilateral with an axis-aligned
// box and appends the resulting convex polygon to dst in clockwise
// order. The polygon has between 0 and MaxClipVertices vertices; zero
// vertices are appended when the intersection is empty.
//
// Clipping is inclusive on the left and top box edges and exclusive on
// the right and bottom, matching the half-open Rect convention:
// a degenerate result with no area is dropped entirely.
func ClipQuadBox(dst []Vec2, q *Quad, box Rect) []Vec2 {
	if q.AxisAligned {
		return clipQuadAligned(dst, q, box)
	}
	return clipQuadGeneral(dst, q, box)
}

// clipQuadAligned clamps each component of an axis-aligned quad against
// the box. The vertex order of the input is preserved, so the output
// stays clockwise.
func clipQuadAligned(dst []Vec2, q *Quad, box Rect) []Vec2 {
	x0, y0 := float32(box.X0), float32(box.Y0)
	x1, y1 := float32(box.X1), float32(box.Y1)

	var out [4]Vec2
	minX, minY := x1, y1
	maxX, maxY := x0, y0
	for i, v := range q.V {
		out[i] = Vec2{X: clampf(v.X, x0, x1), Y: clampf(v.Y, y0, y1)}
		minX = minf(minX, out[i].X)
		minY = minf(minY, out[i].Y)
		maxX = maxf(maxX, out[i].X)
		maxY = maxf(maxY, out[i].Y)
	}
	if maxX <= minX || maxY <= minY {
		return dst
	}
	return append(dst, out[:]...)
}

// clipQuadGeneral clips the quad against each box edge in turn
// (Sutherland-Hodgman). Vertices are emitted where the polygon crosses
// an edge; each edge can grow the polygon by at most one vertex, giving
// the 8-vertex bound.
func clipQuadGeneral(dst []Vec2, q *Quad, box Rect) []Vec2 {
	var bufA, bufB [MaxClipVertices]Vec2
	poly := append(bufA[:0], q.V[:]...)
	next := bufB[:0]

	x0, y0 := float32(box.X0), float32(box.Y0)
	x1, y1 := float32(box.X1), float32(box.Y1)

	edges := [4]struct {
		inside    func(Vec2) bool
		intersect func(a, b Vec2) Vec2
	}{
		{ // left
			func(p Vec2) bool { return p.X >= x0 },
			func(a, b Vec2) Vec2 { return Vec2{x0, a.Y + (b.Y-a.Y)*(x0-a.X)/(b.X-a.X)} },
		},
		{ // top
			func(p Vec2) bool { return p.Y >= y0 },
			func(a, b Vec2) Vec2 { return Vec2{a.X + (b.X-a.X)*(y0-a.Y)/(b.Y-a.Y), y0} },
		},
		{ // right
			func(p Vec2) bool { return p.X <= x1 },
			func(a, b Vec2) Vec2 { return Vec2{x1, a.Y + (b.Y-a.Y)*(x1-a.X)/(b.X-a.X)} },
		},
		{ // bottom
			func(p Vec2) bool { return p.Y <= y1 },
			func(a, b Vec2) Vec2 { return Vec2{a.X + (b.X-a.X)*(y1-a.Y)/(b.Y-a.Y), y1} },
		},
	}

	for _, e := range edges {
		if len(poly) == 0 {
			return dst
		}
		next = next[:0]
		prev := poly[len(poly)-1]
		prevIn := e.inside(prev)
		for _, cur := range poly {
			curIn := e.inside(cur)
			if curIn != prevIn {
				next = append(next, e.intersect(prev, cur))
			}
			if curIn {
				next = append(next, cur)
			}
			prev, prevIn = cur, curIn
		}
		poly, next = next, poly
	}

	if len(poly) < 3 || polyArea(poly) == 0 {
		return dst
	}
	return append(dst, poly...)
}

// polyArea returns twice the absolute area of a polygon.
func polyArea(p []Vec2) float32 {
	var a float32
	for i := range p {
		j := (i + 1) % len(p)
		a += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	if a < 0 {
		a = -a
	}
	return a
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

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
