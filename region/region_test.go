package region

import (
	"testing"
)

func TestRectIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{
			name: "overlapping",
			a:    NewRect(0, 0, 100, 100),
			b:    NewRect(50, 50, 100, 100),
			want: Rect{X0: 50, Y0: 50, X1: 100, Y1: 100},
		},
		{
			name: "disjoint",
			a:    NewRect(0, 0, 10, 10),
			b:    NewRect(20, 20, 10, 10),
			want: Rect{},
		},
		{
			name: "touching edges is empty",
			a:    NewRect(0, 0, 10, 10),
			b:    NewRect(10, 0, 10, 10),
			want: Rect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersect(tt.b); got != tt.want {
				t.Errorf("Intersect() = %v, want %v", got, tt.want)
			}
		})
	}
}

// covered samples every integer point of the extents of both regions and
// reports whether membership matches the reference predicate.
func covered(t *testing.T, r *Region, want func(x, y int32) bool) {
	t.Helper()
	e := r.Extents()
	for y := e.Y0 - 2; y < e.Y1+2; y++ {
		for x := e.X0 - 2; x < e.X1+2; x++ {
			if got := r.ContainsPoint(x, y); got != want(x, y) {
				t.Fatalf("ContainsPoint(%d, %d) = %v, want %v", x, y, got, !got)
			}
		}
	}
}

func inRect(r Rect, x, y int32) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

func TestRegionUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
	}{
		{"disjoint bands", NewRect(0, 0, 10, 10), NewRect(0, 20, 10, 10)},
		{"horizontal neighbors", NewRect(0, 0, 10, 10), NewRect(10, 0, 10, 10)},
		{"overlap", NewRect(0, 0, 20, 20), NewRect(10, 10, 20, 20)},
		{"contained", NewRect(0, 0, 30, 30), NewRect(5, 5, 10, 10)},
		{"offset bands", NewRect(0, 0, 10, 10), NewRect(5, 5, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromRect(tt.a)
			r.UnionRect(tt.b)
			covered(t, &r, func(x, y int32) bool {
				return inRect(tt.a, x, y) || inRect(tt.b, x, y)
			})
		})
	}
}

func TestRegionUnionCoalesces(t *testing.T) {
	// Two horizontally adjacent rects in one band collapse into one.
	r := FromRect(NewRect(0, 0, 10, 10))
	r.UnionRect(NewRect(10, 0, 10, 10))
	if r.NumRects() != 1 {
		t.Errorf("NumRects() = %d, want 1", r.NumRects())
	}
	if got, want := r.Extents(), (Rect{0, 0, 20, 10}); got != want {
		t.Errorf("Extents() = %v, want %v", got, want)
	}

	// Two vertically adjacent rects with identical spans coalesce too.
	r = FromRect(NewRect(0, 0, 10, 10))
	r.UnionRect(NewRect(0, 10, 10, 10))
	if r.NumRects() != 1 {
		t.Errorf("vertical NumRects() = %d, want 1", r.NumRects())
	}
}

func TestRegionIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
	}{
		{"overlap", NewRect(0, 0, 20, 20), NewRect(10, 10, 20, 20)},
		{"disjoint", NewRect(0, 0, 10, 10), NewRect(50, 50, 10, 10)},
		{"contained", NewRect(0, 0, 30, 30), NewRect(5, 5, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromRect(tt.a)
			r.IntersectRect(tt.b)
			covered(t, &r, func(x, y int32) bool {
				return inRect(tt.a, x, y) && inRect(tt.b, x, y)
			})
		})
	}
}

func TestRegionSubtract(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
	}{
		{"hole in middle", NewRect(0, 0, 30, 30), NewRect(10, 10, 10, 10)},
		{"left half", NewRect(0, 0, 20, 20), NewRect(0, 0, 10, 20)},
		{"disjoint", NewRect(0, 0, 10, 10), NewRect(50, 0, 10, 10)},
		{"full cover", NewRect(5, 5, 10, 10), NewRect(0, 0, 30, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromRect(tt.a)
			r.SubtractRect(tt.b)
			covered(t, &r, func(x, y int32) bool {
				return inRect(tt.a, x, y) && !inRect(tt.b, x, y)
			})
		})
	}
}

func TestRegionSubtractFullIsEmptyCanonical(t *testing.T) {
	r := FromRect(NewRect(5, 5, 10, 10))
	r.SubtractRect(NewRect(0, 0, 30, 30))
	if !r.Empty() {
		t.Fatal("region not empty after subtracting a superset")
	}
	if r.NumRects() != 0 {
		t.Errorf("NumRects() = %d, want 0", r.NumRects())
	}
	if r.Extents() != (Rect{}) {
		t.Errorf("Extents() = %v, want zero", r.Extents())
	}
}

func TestRegionTranslate(t *testing.T) {
	r := FromRects(NewRect(0, 0, 10, 10), NewRect(20, 0, 10, 10))
	r.Translate(5, -3)
	want := FromRects(NewRect(5, -3, 10, 10), NewRect(25, -3, 10, 10))
	if !r.Equal(&want) {
		t.Errorf("Translate() = %v, want %v", r.Rects(), want.Rects())
	}
}

func TestRegionBandedOrder(t *testing.T) {
	// Whatever the construction order, rects come out sorted by y then x.
	r := FromRects(
		NewRect(50, 50, 10, 10),
		NewRect(0, 0, 10, 10),
		NewRect(20, 0, 10, 10),
		NewRect(0, 50, 10, 10),
	)
	rects := r.Rects()
	for i := 1; i < len(rects); i++ {
		prev, cur := rects[i-1], rects[i]
		if cur.Y0 < prev.Y0 || (cur.Y0 == prev.Y0 && cur.X0 <= prev.X0) {
			t.Fatalf("rects not in y-x banded order: %v", rects)
		}
	}
}

func TestCompressBands(t *testing.T) {
	tests := []struct {
		name string
		in   []Rect
		want int // max rect count after compression
	}{
		{
			name: "stacked identical columns",
			in: []Rect{
				{0, 0, 10, 10},
				{0, 10, 10, 20},
				{0, 20, 10, 30},
			},
			want: 1,
		},
		{
			name: "mixed band",
			in: []Rect{
				{0, 0, 10, 10}, {20, 0, 30, 10},
				{0, 10, 10, 20},
			},
			want: 2,
		},
		{
			name: "no adjacency",
			in: []Rect{
				{0, 0, 10, 10},
				{0, 20, 10, 30},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompressBands(tt.in)
			if len(got) > tt.want {
				t.Errorf("CompressBands() produced %d rects, want <= %d", len(got), tt.want)
			}
			if len(got) > len(tt.in) {
				t.Errorf("CompressBands() grew the rect count: %d > %d", len(got), len(tt.in))
			}
			// Same point set as the input.
			before := FromRects(tt.in...)
			after := FromRects(got...)
			if !before.Equal(&after) {
				t.Errorf("CompressBands() changed coverage: %v -> %v", tt.in, got)
			}
		})
	}
}
