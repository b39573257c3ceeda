// Package region implements the damage algebra used by the repaint core.
//
// A Region is an ordered sequence of non-overlapping axis-aligned
// rectangles in y-x banded form: rectangles are sorted primarily by their
// top edge and secondarily by their left edge, and all rectangles sharing
// a top edge share a bottom edge. Union, intersection and subtraction run
// in linear time in the number of rectangles.
//
// Rectangles are half-open: a Rect covers points with X0 <= x < X1 and
// Y0 <= y < Y1.
package region

// Rect is an axis-aligned rectangle with half-open extents.
type Rect struct {
	X0, Y0, X1, Y1 int32
}

// NewRect creates a rectangle from a position and size.
func NewRect(x, y, w, h int32) Rect {
	return Rect{X0: x, Y0: y, X1: x + w, Y1: y + h}
}

// Empty returns true if the rectangle covers no points.
func (r Rect) Empty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

// Width returns the rectangle width.
func (r Rect) Width() int32 { return r.X1 - r.X0 }

// Height returns the rectangle height.
func (r Rect) Height() int32 { return r.Y1 - r.Y0 }

// Intersect returns the intersection of two rectangles.
// The result is the zero Rect if they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Overlaps returns true if the two rectangles share any point.
func (r Rect) Overlaps(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Contains returns true if o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	if o.Empty() {
		return true
	}
	return o.X0 >= r.X0 && o.X1 <= r.X1 && o.Y0 >= r.Y0 && o.Y1 <= r.Y1
}

// Region is a set of points represented as y-x banded rectangles.
// The zero value is the empty region and is ready to use.
//
// Regions are empty-canonical: the region is empty if and only if it
// holds zero rectangles.
type Region struct {
	rects   []Rect
	extents Rect
}

// FromRect creates a region covering a single rectangle.
func FromRect(r Rect) Region {
	var reg Region
	if !r.Empty() {
		reg.rects = append(reg.rects, r)
		reg.extents = r
	}
	return reg
}

// FromRects creates a region covering the union of the given rectangles.
func FromRects(rs ...Rect) Region {
	var reg Region
	for _, r := range rs {
		reg.UnionRect(r)
	}
	return reg
}

// Empty returns true if the region covers no points.
func (r *Region) Empty() bool { return len(r.rects) == 0 }

// NumRects returns the number of rectangles in the region.
func (r *Region) NumRects() int { return len(r.rects) }

// Rects returns the region's rectangles in y-x banded order.
// The slice aliases the region's storage and must not be modified.
func (r *Region) Rects() []Rect { return r.rects }

// Extents returns the bounding rectangle of the region.
// Constant time; the extents are maintained across operations.
func (r *Region) Extents() Rect { return r.extents }

// Clear resets the region to empty, retaining storage for reuse.
func (r *Region) Clear() {
	r.rects = r.rects[:0]
	r.extents = Rect{}
}

// Copy replaces the contents of r with those of o.
func (r *Region) Copy(o *Region) {
	r.rects = append(r.rects[:0], o.rects...)
	r.extents = o.extents
}

// Translate shifts every rectangle of the region by (dx, dy).
func (r *Region) Translate(dx, dy int32) {
	for i := range r.rects {
		r.rects[i].X0 += dx
		r.rects[i].X1 += dx
		r.rects[i].Y0 += dy
		r.rects[i].Y1 += dy
	}
	if len(r.rects) > 0 {
		r.extents.X0 += dx
		r.extents.X1 += dx
		r.extents.Y0 += dy
		r.extents.Y1 += dy
	}
}

// Equal reports whether two regions cover the same point set with the
// same banded representation.
func (r *Region) Equal(o *Region) bool {
	if len(r.rects) != len(o.rects) {
		return false
	}
	for i := range r.rects {
		if r.rects[i] != o.rects[i] {
			return false
		}
	}
	return true
}

// ContainsPoint returns true if the point (x, y) lies in the region.
func (r *Region) ContainsPoint(x, y int32) bool {
	if !(x >= r.extents.X0 && x < r.extents.X1 && y >= r.extents.Y0 && y < r.extents.Y1) {
		return false
	}
	for _, b := range r.rects {
		if y < b.Y0 {
			return false
		}
		if y >= b.Y1 {
			continue
		}
		if x >= b.X0 && x < b.X1 {
			return true
		}
	}
	return false
}

// Union grows r to cover all points of o.
func (r *Region) Union(o *Region) {
	if o.Empty() {
		return
	}
	if r.Empty() {
		r.Copy(o)
		return
	}
	r.rects = operate(r.rects, o.rects, opUnion)
	r.recomputeExtents()
}

// UnionRect grows r to cover all points of rect.
func (r *Region) UnionRect(rect Rect) {
	if rect.Empty() {
		return
	}
	tmp := Region{rects: []Rect{rect}, extents: rect}
	r.Union(&tmp)
}

// Intersect shrinks r to the points it shares with o.
func (r *Region) Intersect(o *Region) {
	if r.Empty() {
		return
	}
	if o.Empty() || !r.extents.Overlaps(o.extents) {
		r.Clear()
		return
	}
	r.rects = operate(r.rects, o.rects, opIntersect)
	r.recomputeExtents()
}

// IntersectRect shrinks r to the points it shares with rect.
func (r *Region) IntersectRect(rect Rect) {
	tmp := Region{rects: []Rect{rect}, extents: rect}
	if rect.Empty() {
		tmp.rects = nil
	}
	r.Intersect(&tmp)
}

// Subtract removes all points of o from r.
func (r *Region) Subtract(o *Region) {
	if r.Empty() || o.Empty() || !r.extents.Overlaps(o.extents) {
		return
	}
	r.rects = operate(r.rects, o.rects, opSubtract)
	r.recomputeExtents()
}

// SubtractRect removes all points of rect from r.
func (r *Region) SubtractRect(rect Rect) {
	if rect.Empty() {
		return
	}
	tmp := Region{rects: []Rect{rect}, extents: rect}
	r.Subtract(&tmp)
}

func (r *Region) recomputeExtents() {
	if len(r.rects) == 0 {
		r.extents = Rect{}
		return
	}
	e := r.rects[0]
	for _, b := range r.rects[1:] {
		if b.X0 < e.X0 {
			e.X0 = b.X0
		}
		if b.X1 > e.X1 {
			e.X1 = b.X1
		}
	}
	e.Y1 = r.rects[len(r.rects)-1].Y1
	r.extents = e
}

type regionOp uint8

const (
	opUnion regionOp = iota
	opIntersect
	opSubtract
)

// span is a half-open 1D interval on the x axis.
type span struct {
	x0, x1 int32
}

// band is one horizontal slice of a region: a y interval plus the
// x spans covered within it.
type band struct {
	y0, y1 int32
	spans  []span
}

// bands decomposes a banded rect slice into its bands. Rectangles in a
// band are contiguous and share y extents by the banding invariant.
func bands(rects []Rect) []band {
	var out []band
	for i := 0; i < len(rects); {
		y0, y1 := rects[i].Y0, rects[i].Y1
		j := i
		for j < len(rects) && rects[j].Y0 == y0 {
			j++
		}
		spans := make([]span, 0, j-i)
		for _, rc := range rects[i:j] {
			spans = append(spans, span{rc.X0, rc.X1})
		}
		out = append(out, band{y0: y0, y1: y1, spans: spans})
		i = j
	}
	return out
}

// operate runs a banded sweep of op over two banded rect slices and
// returns the result in banded form with adjacent identical bands
// coalesced.
func operate(a, b []Rect, op regionOp) []Rect {
	ab := bands(a)
	bb := bands(b)

	var out []Rect
	var prevStart int // index of the first rect of the previous band

	appendBand := func(y0, y1 int32, spans []span) {
		if len(spans) == 0 || y0 >= y1 {
			return
		}
		// Coalesce with the previous band when it ends where this one
		// begins and covers the same x spans.
		if prevStart < len(out) {
			prev := out[prevStart:]
			if prev[0].Y1 == y0 && len(prev) == len(spans) {
				same := true
				for i, s := range spans {
					if prev[i].X0 != s.x0 || prev[i].X1 != s.x1 {
						same = false
						break
					}
				}
				if same {
					for i := range prev {
						prev[i].Y1 = y1
					}
					return
				}
			}
		}
		start := len(out)
		for _, s := range spans {
			out = append(out, Rect{X0: s.x0, Y0: y0, X1: s.x1, Y1: y1})
		}
		prevStart = start
	}

	ai, bi := 0, 0
	var y int32
	switch {
	case len(ab) == 0 && len(bb) == 0:
		return nil
	case len(ab) == 0:
		y = bb[0].y0
	case len(bb) == 0:
		y = ab[0].y0
	default:
		y = min(ab[0].y0, bb[0].y0)
	}

	for ai < len(ab) || bi < len(bb) {
		switch {
		case ai >= len(ab):
			// Only B remains.
			if op == opUnion {
				appendBand(max(y, bb[bi].y0), bb[bi].y1, bb[bi].spans)
			}
			y = bb[bi].y1
			bi++
		case bi >= len(bb):
			// Only A remains.
			if op == opUnion || op == opSubtract {
				appendBand(max(y, ab[ai].y0), ab[ai].y1, ab[ai].spans)
			}
			y = ab[ai].y1
			ai++
		default:
			ca, cb := ab[ai], bb[bi]
			top := max(y, min(ca.y0, cb.y0))
			// Slice off the next homogeneous y interval.
			switch {
			case top < ca.y0: // B only
				bot := min(ca.y0, cb.y1)
				if op == opUnion {
					appendBand(top, bot, cb.spans)
				}
				y = bot
			case top < cb.y0: // A only
				bot := min(cb.y0, ca.y1)
				if op == opUnion || op == opSubtract {
					appendBand(top, bot, ca.spans)
				}
				y = bot
			default: // overlap
				bot := min(ca.y1, cb.y1)
				appendBand(top, bot, combineSpans(ca.spans, cb.spans, op))
				y = bot
			}
			if y >= ca.y1 {
				ai++
			}
			if y >= cb.y1 {
				bi++
			}
		}
	}
	return out
}

// combineSpans merges two sorted, non-overlapping span lists under op.
func combineSpans(a, b []span, op regionOp) []span {
	switch op {
	case opUnion:
		return unionSpans(a, b)
	case opIntersect:
		return intersectSpans(a, b)
	default:
		return subtractSpans(a, b)
	}
}

func unionSpans(a, b []span) []span {
	out := make([]span, 0, len(a)+len(b))
	ai, bi := 0, 0
	for ai < len(a) || bi < len(b) {
		var next span
		if bi >= len(b) || (ai < len(a) && a[ai].x0 <= b[bi].x0) {
			next = a[ai]
			ai++
		} else {
			next = b[bi]
			bi++
		}
		if n := len(out); n > 0 && out[n-1].x1 >= next.x0 {
			if next.x1 > out[n-1].x1 {
				out[n-1].x1 = next.x1
			}
		} else {
			out = append(out, next)
		}
	}
	return out
}

func intersectSpans(a, b []span) []span {
	var out []span
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		x0 := max(a[ai].x0, b[bi].x0)
		x1 := min(a[ai].x1, b[bi].x1)
		if x0 < x1 {
			out = append(out, span{x0, x1})
		}
		if a[ai].x1 < b[bi].x1 {
			ai++
		} else {
			bi++
		}
	}
	return out
}

func subtractSpans(a, b []span) []span {
	var out []span
	bi := 0
	for _, sa := range a {
		x := sa.x0
		for bi < len(b) && b[bi].x1 <= x {
			bi++
		}
		j := bi
		for j < len(b) && b[j].x0 < sa.x1 {
			if b[j].x0 > x {
				out = append(out, span{x, b[j].x0})
			}
			if b[j].x1 > x {
				x = b[j].x1
			}
			j++
		}
		if x < sa.x1 {
			out = append(out, span{x, sa.x1})
		}
	}
	return out
}

// CompressBands merges vertically adjacent rectangles with identical
// horizontal extents into taller ones. The banded algebra only coalesces
// bands that match in full, so a tall narrow area damaged alongside a
// wide one still splits into many short rects; compressing them shortens
// the draw loop.
//
// The result covers exactly the same point set as the input. It is not
// necessarily banded and is intended for quad generation only.
func CompressBands(rects []Rect) []Rect {
	out := make([]Rect, 0, len(rects))
	for _, rc := range rects {
		merged := false
		// Candidates end exactly where this rect begins. Input order is
		// banded, so they sit near the tail of out; the scan stops at
		// the first rect that ends above this band.
		for i := len(out) - 1; i >= 0 && out[i].Y1 >= rc.Y0; i-- {
			if out[i].Y1 == rc.Y0 && out[i].X0 == rc.X0 && out[i].X1 == rc.X1 {
				out[i].Y1 = rc.Y1
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, rc)
		}
	}
	return out
}
