package repaint

import (
	"testing"

	"github.com/gocomp/repaint/backend/soft"
	"github.com/gocomp/repaint/region"
)

func TestCreateOutputStateEmptyArea(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	if _, err := r.CreateOutputState(failingTarget{}, region.Rect{}); err == nil {
		t.Fatal("empty area accepted")
	}
}

func TestFirstFrameRepaintsEverything(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 8, 8, nil)

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	// The frame declares a single damaged pixel, but the buffer has
	// never been rendered, so the whole output is repainted.
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 1, 1))

	if got := frontPixel(t, tgt, 7, 7); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("pixel = %v, want red everywhere on first frame", got)
	}
	dmg := tgt.LastDamage()
	if len(dmg) != 1 || dmg[0] != region.NewRect(0, 0, 8, 8) {
		t.Errorf("swap damage = %v, want full area", dmg)
	}
}

func TestDamageAccumulatesAcrossSwapchain(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 8, 8, nil)

	red := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	green := solidNode(t, r, [4]float32{0, 1, 0, 1}, 8, 8)

	// Frame 1 paints buffer 0 red in full.
	repaint(t, r, o, []PaintNode{red}, region.NewRect(0, 0, 8, 8))

	// Frame 2 hits buffer 1, which has never been rendered: full
	// repaint despite the small damage.
	rectA := region.NewRect(0, 0, 2, 2)
	repaint(t, r, o, []PaintNode{green}, rectA)
	if got := frontPixel(t, tgt, 7, 7); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("frame 2 pixel = %v, want green", got)
	}

	// Frame 3 is back on buffer 0 at age 2. Its pending damage is
	// frame 2's rect plus this frame's, everything else keeps frame
	// 1's content.
	rectB := region.NewRect(4, 4, 2, 2)
	repaint(t, r, o, []PaintNode{green}, rectB)

	if got := frontPixel(t, tgt, 0, 0); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("inside accumulated damage = %v, want green", got)
	}
	if got := frontPixel(t, tgt, 5, 5); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("inside frame damage = %v, want green", got)
	}
	if got := frontPixel(t, tgt, 3, 1); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("undamaged pixel = %v, want frame 1 red", got)
	}
	dmg := tgt.LastDamage()
	if len(dmg) != 2 || dmg[0] != rectA || dmg[1] != rectB {
		t.Errorf("swap damage = %v, want [%v %v]", dmg, rectA, rectB)
	}
	if r.Frame() != 3 {
		t.Errorf("Frame = %d, want 3", r.Frame())
	}
}

func TestSingleBufferPartialRepaint(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 8, 8, []soft.OutputOption{soft.WithBufferCount(1)})

	red := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	green := solidNode(t, r, [4]float32{0, 1, 0, 1}, 8, 8)

	repaint(t, r, o, []PaintNode{red}, region.NewRect(0, 0, 8, 8))
	repaint(t, r, o, []PaintNode{green}, region.NewRect(2, 2, 2, 2))

	if got := frontPixel(t, tgt, 3, 3); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("damaged pixel = %v, want green", got)
	}
	if got := frontPixel(t, tgt, 6, 6); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("undamaged pixel = %v, want red", got)
	}
}

func TestSwapchainDeeperThanRingRepaintsFully(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 8, 8, []soft.OutputOption{soft.WithBufferCount(4)})

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	full := region.NewRect(0, 0, 8, 8)
	for i := 0; i < 6; i++ {
		repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 1, 1))
		dmg := tgt.LastDamage()
		if len(dmg) != 1 || dmg[0] != full {
			t.Fatalf("frame %d swap damage = %v, want full repaint", i+1, dmg)
		}
	}
}

func TestResizeDropsDamageHistory(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 8, 8, []soft.OutputOption{soft.WithBufferCount(1)})

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 8, 8))

	if err := o.ResizeOutputState(region.NewRect(0, 0, 8, 8)); err != nil {
		t.Fatalf("ResizeOutputState: %v", err)
	}
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 1, 1))

	dmg := tgt.LastDamage()
	if len(dmg) != 1 || dmg[0] != region.NewRect(0, 0, 8, 8) {
		t.Errorf("swap damage after resize = %v, want full area", dmg)
	}
	if err := o.ResizeOutputState(region.Rect{}); err == nil {
		t.Error("empty resize accepted")
	}
}

func TestAddBorderDamage(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 8, 8, []soft.OutputOption{soft.WithBufferCount(1)})

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 8, 8))

	o.AddBorderDamage(BorderTop | BorderLeft)
	if got := o.ring[0].borderDamage; got != BorderTop|BorderLeft {
		t.Errorf("borderDamage = %#x, want top|left", got)
	}
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 1, 1))
	if got := o.ring[0].borderDamage; got != 0 {
		t.Errorf("borderDamage after repaint = %#x, want cleared", got)
	}
}

func TestShadowAppliesOutputColorTransform(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	ct := NewColorTransform(nil, []float32{0, 0.5}, nil, 0)
	o, tgt := newTestOutput(t, r, sb, 4, 4, nil, WithOutputColorTransform(ct))

	if o.shadow == nil {
		t.Fatal("no shadow framebuffer for a transformed output")
	}
	n := solidNode(t, r, [4]float32{1, 1, 1, 1}, 4, 4)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	got := frontPixel(t, tgt, 2, 2)
	if got != [4]byte{128, 128, 128, 255} {
		t.Errorf("pixel = %v, want half-scaled white", got)
	}
}

func TestShadowRetainsUndamagedContent(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	ct := NewColorTransform(nil, []float32{0, 1}, nil, 0)
	o, tgt := newTestOutput(t, r, sb, 8, 8,
		[]soft.OutputOption{soft.WithBufferCount(1)}, WithOutputColorTransform(ct))

	red := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	green := solidNode(t, r, [4]float32{0, 1, 0, 1}, 8, 8)

	repaint(t, r, o, []PaintNode{red}, region.NewRect(0, 0, 8, 8))
	repaint(t, r, o, []PaintNode{green}, region.NewRect(2, 2, 2, 2))

	if got := frontPixel(t, tgt, 3, 3); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("damaged pixel = %v, want green", got)
	}
	// The blit re-covers the whole area from the shadow, which still
	// holds frame 1 outside the damage.
	if got := frontPixel(t, tgt, 6, 6); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("undamaged pixel = %v, want red from the shadow", got)
	}
}

func TestShadowFullRedraw(t *testing.T) {
	r, sb := newTestRenderer(t, nil, WithShadowFullRedraw())
	ct := NewColorTransform(nil, []float32{0, 1}, nil, 0)
	o, tgt := newTestOutput(t, r, sb, 8, 8,
		[]soft.OutputOption{soft.WithBufferCount(1)}, WithOutputColorTransform(ct))

	red := solidNode(t, r, [4]float32{1, 0, 0, 1}, 8, 8)
	green := solidNode(t, r, [4]float32{0, 1, 0, 1}, 8, 8)

	repaint(t, r, o, []PaintNode{red}, region.NewRect(0, 0, 8, 8))
	repaint(t, r, o, []PaintNode{green}, region.NewRect(2, 2, 2, 2))

	// Full redraw recomposites everything into the shadow each frame.
	if got := frontPixel(t, tgt, 6, 6); got != [4]byte{0, 255, 0, 255} {
		t.Errorf("pixel = %v, want green everywhere", got)
	}
}

func TestShadowDisabled(t *testing.T) {
	r, sb := newTestRenderer(t, nil, WithShadowDisabled())
	ct := NewColorTransform(nil, []float32{0, 0.5}, nil, 0)
	o, _ := newTestOutput(t, r, sb, 4, 4, nil, WithOutputColorTransform(ct))

	if o.shadow != nil {
		t.Error("shadow allocated despite WithShadowDisabled")
	}
}

func TestIdentityTransformNeedsNoShadow(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)
	if o.shadow != nil {
		t.Error("shadow allocated for an identity output transform")
	}
	o2, _ := newTestOutput(t, r, sb, 4, 4, nil, WithOutputColorTransform(NewColorTransform(nil, nil, nil, 0)))
	if o2.shadow != nil {
		t.Error("shadow allocated for an empty transform descriptor")
	}
}

func TestNodeColorTransform(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, tgt := newTestOutput(t, r, sb, 4, 4, nil)

	n := solidNode(t, r, [4]float32{1, 1, 1, 1}, 4, 4)
	n.ColorTransform = NewColorTransform(nil, []float32{0, 0.5}, nil, 0)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if got := frontPixel(t, tgt, 2, 2); got != [4]byte{128, 128, 128, 255} {
		t.Errorf("pixel = %v, want half-scaled white", got)
	}
}

func TestOutputAreaInsideLargerFramebuffer(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	tgt, err := soft.NewOutput(sb, 8, 8)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	o, err := r.CreateOutputState(tgt, region.NewRect(2, 2, 4, 4))
	if err != nil {
		t.Fatalf("CreateOutputState: %v", err)
	}
	defer o.Destroy()

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	if got := frontPixel(t, tgt, 3, 3); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("inside area = %v, want red", got)
	}
	if got := frontPixel(t, tgt, 0, 0); got != [4]byte{0, 0, 0, 0} {
		t.Errorf("border = %v, want untouched", got)
	}
	if got := frontPixel(t, tgt, 7, 7); got != [4]byte{0, 0, 0, 0} {
		t.Errorf("border = %v, want untouched", got)
	}
}

func TestFrameTimeQuery(t *testing.T) {
	r, sb := newTestRenderer(t, nil)
	o, _ := newTestOutput(t, r, sb, 4, 4, nil)

	if _, ok := o.FrameTime(); ok {
		t.Fatal("frame time reported before the first repaint")
	}

	n := solidNode(t, r, [4]float32{1, 0, 0, 1}, 4, 4)
	repaint(t, r, o, []PaintNode{n}, region.NewRect(0, 0, 4, 4))

	d, ok := o.FrameTime()
	if !ok {
		t.Fatal("frame time unavailable after repaint")
	}
	if d < 0 {
		t.Fatalf("frame time = %v, want non-negative", d)
	}
}
