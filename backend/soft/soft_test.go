package soft

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
	"golang.org/x/sys/unix"
)

// ortho returns the projection mapping output coordinates of a w x h
// framebuffer to clip space.
func ortho(w, h int32) backend.Mat4 {
	m := backend.Mat4Identity
	m[0] = 2 / float32(w)
	m[5] = -2 / float32(h)
	m[12] = -1
	m[13] = 1
	return m
}

// quad returns a rectangle as a strip with its index order.
func quad(x0, y0, x1, y1 float32) ([]backend.Vertex, []uint16) {
	return []backend.Vertex{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1},
	}, []uint16{0, 1, 2, 3}
}

func newTestOutput(t *testing.T, w, h int32, opts ...Option) (*Backend, *Output) {
	t.Helper()
	b := New(opts...)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	o, err := NewOutput(b, w, h)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if err := o.MakeCurrent(); err != nil {
		t.Fatalf("MakeCurrent: %v", err)
	}
	return b, o
}

func drawSolid(t *testing.T, b *Backend, w, h int32, x0, y0, x1, y1 float32, color [4]float32, blend bool) {
	t.Helper()
	cfg := &backend.ShaderConfig{
		Variant:    pixfmt.VariantSolid,
		Projection: ortho(w, h),
		SolidColor: color,
		Alpha:      1,
		Blend:      blend,
		Color:      backend.ColorUniforms{Identity: true},
	}
	if err := b.BeginPass(backend.PassDesc{Viewport: region.NewRect(0, 0, w, h)}); err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	verts, idx := quad(x0, y0, x1, y1)
	if err := b.Draw(cfg, verts, idx); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	b.EndPass()
}

func readXBGR(t *testing.T, b *Backend, w, h int32) []byte {
	t.Helper()
	dst := make([]byte, w*h*4)
	if err := b.ReadPixels(region.NewRect(0, 0, w, h), pixfmt.XBGR8888, dst, w*4); err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	return dst
}

func TestSolidFill(t *testing.T) {
	b, _ := newTestOutput(t, 8, 8)
	drawSolid(t, b, 8, 8, 2, 2, 6, 6, [4]float32{1, 0, 0, 1}, false)

	got := readXBGR(t, b, 8, 8)
	red := 0
	for y := int32(0); y < 8; y++ {
		for x := int32(0); x < 8; x++ {
			r := got[(y*8+x)*4]
			inside := x >= 2 && x < 6 && y >= 2 && y < 6
			if inside {
				if r != 255 {
					t.Errorf("pixel (%d,%d): r = %d, want 255", x, y, r)
				}
				red++
			} else if r != 0 {
				t.Errorf("pixel (%d,%d): r = %d, want 0", x, y, r)
			}
		}
	}
	if red != 16 {
		t.Errorf("filled %d pixels, want 16", red)
	}
}

func TestSharedEdgeCoversOnce(t *testing.T) {
	b, _ := newTestOutput(t, 8, 8)
	drawSolid(t, b, 8, 8, 0, 0, 8, 8, [4]float32{0, 0, 0, 1}, false)
	// A translucent quad is split into two triangles along the
	// diagonal; a pixel blended by both would come out brighter.
	drawSolid(t, b, 8, 8, 0, 0, 8, 8, [4]float32{0.25, 0.25, 0.25, 0.5}, true)

	got := readXBGR(t, b, 8, 8)
	for i := 0; i < 64; i++ {
		if r := got[i*4]; r != 64 {
			t.Fatalf("pixel %d: r = %d, want 64", i, r)
		}
	}
}

func TestDegenerateIndicesSkipped(t *testing.T) {
	b, _ := newTestOutput(t, 8, 4)
	cfg := &backend.ShaderConfig{
		Variant:    pixfmt.VariantSolid,
		Projection: ortho(8, 4),
		SolidColor: [4]float32{0, 1, 0, 1},
		Alpha:      1,
		Color:      backend.ColorUniforms{Identity: true},
	}
	// Two quads chained through repeated indices; the separator
	// triangles must not paint the gap between them.
	verts := []backend.Vertex{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 4}, {X: 2, Y: 4},
		{X: 6, Y: 0}, {X: 8, Y: 0}, {X: 6, Y: 4}, {X: 8, Y: 4},
	}
	idx := []uint16{0, 1, 2, 3, 3, 4, 4, 5, 6, 7}
	if err := b.BeginPass(backend.PassDesc{Viewport: region.NewRect(0, 0, 8, 4)}); err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	if err := b.Draw(cfg, verts, idx); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	b.EndPass()

	got := readXBGR(t, b, 8, 4)
	for y := int32(0); y < 4; y++ {
		for x := int32(0); x < 8; x++ {
			g := got[(y*8+x)*4+1]
			want := byte(0)
			if x < 2 || x >= 6 {
				want = 255
			}
			if g != want {
				t.Errorf("pixel (%d,%d): g = %d, want %d", x, y, g, want)
			}
		}
	}
}

func TestTextureDrawRoundTrip(t *testing.T) {
	b, _ := newTestOutput(t, 4, 4)
	tex, err := b.CreateTexture(backend.TextureDesc{Width: 4, Height: 4, Texel: pixfmt.TexelBGRA8})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	src := make([]byte, 4*4*4)
	for i := 0; i < 16; i++ {
		src[i*4+0] = byte(i * 16) // B
		src[i*4+1] = byte(255 - i*16)
		src[i*4+2] = byte(i * 8)
		src[i*4+3] = 255
	}
	if err := tex.Upload(src, 16); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	cfg := &backend.ShaderConfig{
		Variant:    pixfmt.VariantRGBA,
		Projection: ortho(4, 4),
		SurfaceToBuffer: backend.Mat3{
			0.25, 0, 0,
			0, 0.25, 0,
			0, 0, 1,
		},
		Alpha:    1,
		Filter:   backend.FilterNearest,
		Textures: [backend.MaxTexturePlanes]backend.Texture{tex},
		Color:    backend.ColorUniforms{Identity: true},
	}
	if err := b.BeginPass(backend.PassDesc{Viewport: region.NewRect(0, 0, 4, 4)}); err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	verts, idx := quad(0, 0, 4, 4)
	if err := b.Draw(cfg, verts, idx); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	b.EndPass()

	got := make([]byte, 4*4*4)
	if err := b.ReadPixels(region.NewRect(0, 0, 4, 4), pixfmt.ARGB8888, got, 16); err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("readback differs from upload\ngot  % x\nwant % x", got, src)
	}
}

func TestYUVSampling(t *testing.T) {
	b, _ := newTestOutput(t, 2, 2)
	luma, err := b.CreateTexture(backend.TextureDesc{Width: 2, Height: 2, Texel: pixfmt.TexelR8})
	if err != nil {
		t.Fatalf("CreateTexture luma: %v", err)
	}
	// Top row white (Y=235), bottom row black (Y=16), chroma neutral.
	if err := luma.Upload([]byte{235, 235, 16, 16}, 2); err != nil {
		t.Fatalf("Upload luma: %v", err)
	}
	chroma, err := b.CreateTexture(backend.TextureDesc{Width: 1, Height: 1, Texel: pixfmt.TexelRG88})
	if err != nil {
		t.Fatalf("CreateTexture chroma: %v", err)
	}
	if err := chroma.Upload([]byte{128, 128}, 2); err != nil {
		t.Fatalf("Upload chroma: %v", err)
	}

	cfg := &backend.ShaderConfig{
		Variant:    pixfmt.VariantYUV,
		Projection: ortho(2, 2),
		SurfaceToBuffer: backend.Mat3{
			0.5, 0, 0,
			0, 0.5, 0,
			0, 0, 1,
		},
		Alpha:    1,
		Filter:   backend.FilterNearest,
		Textures: [backend.MaxTexturePlanes]backend.Texture{luma, chroma},
		Color:    backend.ColorUniforms{Identity: true},
	}
	if err := b.BeginPass(backend.PassDesc{Viewport: region.NewRect(0, 0, 2, 2)}); err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	verts, idx := quad(0, 0, 2, 2)
	if err := b.Draw(cfg, verts, idx); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	b.EndPass()

	got := readXBGR(t, b, 2, 2)
	for x := 0; x < 2; x++ {
		if r := got[x*4]; r != 255 {
			t.Errorf("top pixel %d: r = %d, want 255", x, r)
		}
		if r := got[(2+x)*4]; r != 0 {
			t.Errorf("bottom pixel %d: r = %d, want 0", x, r)
		}
	}
}

func TestReadbackFormats(t *testing.T) {
	b, _ := newTestOutput(t, 1, 1)
	drawSolid(t, b, 1, 1, 0, 0, 1, 1, [4]float32{1, 0.5, 0, 0.75}, false)

	tests := []struct {
		name   string
		format uint32
		want   []byte
	}{
		{"argb8888", pixfmt.ARGB8888, []byte{0, 128, 255, 191}},
		{"xrgb8888", pixfmt.XRGB8888, []byte{0, 128, 255, 255}},
		{"abgr8888", pixfmt.ABGR8888, []byte{255, 128, 0, 191}},
		{"xbgr8888", pixfmt.XBGR8888, []byte{255, 128, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]byte, 4)
			if err := b.ReadPixels(region.NewRect(0, 0, 1, 1), tt.format, got, 4); err != nil {
				t.Fatalf("ReadPixels: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got % x, want % x", got, tt.want)
			}
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		err := b.ReadPixels(region.NewRect(0, 0, 1, 1), pixfmt.NV12, make([]byte, 4), 4)
		if !errors.Is(err, backend.ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
}

func TestPartialUpload(t *testing.T) {
	b, _ := newTestOutput(t, 4, 4)
	tex, err := b.CreateTexture(backend.TextureDesc{Width: 4, Height: 4, Texel: pixfmt.TexelR8})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	full := make([]byte, 16)
	for i := range full {
		full[i] = byte(i)
	}
	if err := tex.Upload(full, 4); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	patch := make([]byte, 16)
	for i := range patch {
		patch[i] = 200
	}
	if err := tex.UploadRect(patch, 4, region.NewRect(1, 1, 3, 3)); err != nil {
		t.Fatalf("UploadRect: %v", err)
	}

	pm := tex.(*texture).pm
	for y := int32(0); y < 4; y++ {
		for x := int32(0); x < 4; x++ {
			want := byte(y*4 + x)
			if x >= 1 && x < 3 && y >= 1 && y < 3 {
				want = 200
			}
			if got := pm.pix[y*4+x]; got != want {
				t.Errorf("texel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}

	t.Run("released", func(t *testing.T) {
		tex.Close()
		if err := tex.Upload(full, 4); !errors.Is(err, backend.ErrTextureReleased) {
			t.Errorf("err = %v, want ErrTextureReleased", err)
		}
	})
}

func TestOutputBufferAge(t *testing.T) {
	b, o := newTestOutput(t, 4, 4)
	_ = b

	if got := o.Age(); got != 0 {
		t.Fatalf("age before first frame = %d, want 0", got)
	}
	if err := o.Swap(nil); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := o.Age(); got != 0 {
		t.Fatalf("age of untouched second buffer = %d, want 0", got)
	}
	if err := o.Swap(nil); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := o.Age(); got != 2 {
		t.Fatalf("age after full cycle = %d, want 2", got)
	}
	if err := o.Swap(nil); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := o.Age(); got != 2 {
		t.Fatalf("steady-state age = %d, want 2", got)
	}
}

func TestFences(t *testing.T) {
	t.Run("exported fd polls ready", func(t *testing.T) {
		b, _ := newTestOutput(t, 1, 1)
		f, err := b.CreateFence()
		if err != nil {
			t.Fatalf("CreateFence: %v", err)
		}
		defer f.Close()
		if !f.Signaled() {
			t.Error("fence not signaled")
		}
		fd, ok := f.Fd()
		if !ok {
			t.Fatal("Fd() not available")
		}
		defer unix.Close(fd)
		if err := b.WaitFence(fd); err != nil {
			t.Errorf("WaitFence: %v", err)
		}
	})

	t.Run("no fd export", func(t *testing.T) {
		b, _ := newTestOutput(t, 1, 1, WithoutFenceFds())
		f, err := b.CreateFence()
		if err != nil {
			t.Fatalf("CreateFence: %v", err)
		}
		defer f.Close()
		if _, ok := f.Fd(); ok {
			t.Error("Fd() available, want unavailable")
		}
		if !f.Signaled() {
			t.Error("fence not signaled")
		}
	})

	t.Run("no fences", func(t *testing.T) {
		b, _ := newTestOutput(t, 1, 1, WithoutFences())
		if _, err := b.CreateFence(); !errors.Is(err, backend.ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
}

func TestAsyncReadback(t *testing.T) {
	b, _ := newTestOutput(t, 1, 2)
	drawSolid(t, b, 1, 2, 0, 0, 1, 1, [4]float32{1, 0, 0, 1}, false)
	drawSolid(t, b, 1, 2, 0, 1, 1, 2, [4]float32{0, 0, 1, 1}, false)

	op, err := b.BeginReadPixels(region.NewRect(0, 0, 1, 2), pixfmt.XBGR8888)
	if err != nil {
		t.Fatalf("BeginReadPixels: %v", err)
	}
	defer op.Close()
	if f := op.Fence(); f == nil || !f.Signaled() {
		t.Fatal("read fence missing or unsignaled")
	}

	got := make([]byte, 8)
	if err := op.Complete(got, 4, false); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := []byte{255, 0, 0, 255, 0, 0, 255, 255}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}

	if err := op.Complete(got, 4, true); err != nil {
		t.Fatalf("Complete flipped: %v", err)
	}
	wantFlip := []byte{0, 0, 255, 255, 255, 0, 0, 255}
	if !bytes.Equal(got, wantFlip) {
		t.Errorf("flipped: got % x, want % x", got, wantFlip)
	}

	t.Run("disabled", func(t *testing.T) {
		b2, _ := newTestOutput(t, 1, 1, WithoutAsyncReadback())
		_, err := b2.BeginReadPixels(region.NewRect(0, 0, 1, 1), pixfmt.XBGR8888)
		if !errors.Is(err, backend.ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
}

func TestBlitAppliesCurve(t *testing.T) {
	b, _ := newTestOutput(t, 2, 2)
	rt, err := b.CreateRenderTarget(2, 2, pixfmt.TexelRGBA8)
	if err != nil {
		t.Fatalf("CreateRenderTarget: %v", err)
	}
	src := []byte{
		100, 100, 100, 255, 100, 100, 100, 255,
		100, 100, 100, 255, 100, 100, 100, 255,
	}
	if err := rt.Texture().Upload(src, 8); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	curve, err := b.CreateTexture(backend.TextureDesc{Width: 2, Height: 1, Texel: pixfmt.TexelR8})
	if err != nil {
		t.Fatalf("CreateTexture curve: %v", err)
	}
	// Inverting ramp: out = 1 - in.
	if err := curve.Upload([]byte{255, 0}, 2); err != nil {
		t.Fatalf("Upload curve: %v", err)
	}

	cfg := &backend.ShaderConfig{
		Filter: backend.FilterNearest,
		Color: backend.ColorUniforms{
			PostCurve: curve,
		},
	}
	if err := b.Blit(rt, cfg, region.NewRect(0, 0, 2, 2)); err != nil {
		t.Fatalf("Blit: %v", err)
	}

	got := readXBGR(t, b, 2, 2)
	for i := 0; i < 4; i++ {
		if r := got[i*4]; r != 155 {
			t.Errorf("pixel %d: r = %d, want 155", i, r)
		}
	}
}

func TestDMABufImport(t *testing.T) {
	plane := []byte{1, 2, 3, 4}
	b := New(WithDMABufResolver(func(fd int) ([]byte, bool) {
		if fd == 7 {
			return plane, true
		}
		return nil, false
	}))
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	attrs := &backend.DMABufAttrs{
		Width: 2, Height: 2, Format: pixfmt.R8,
		Planes: []backend.DMABufPlane{{FD: 7, Stride: 2}},
	}
	tex, err := b.ImportDMABuf(attrs, 0, backend.TextureDesc{Width: 2, Height: 2, Texel: pixfmt.TexelR8})
	if err != nil {
		t.Fatalf("ImportDMABuf: %v", err)
	}
	if got := tex.(*texture).pm.pix; !bytes.Equal(got, plane) {
		t.Errorf("imported texels % x, want % x", got, plane)
	}

	t.Run("no resolver", func(t *testing.T) {
		b2 := New()
		if err := b2.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
		_, err := b2.ImportDMABuf(attrs, 0, backend.TextureDesc{Width: 2, Height: 2, Texel: pixfmt.TexelR8})
		if !errors.Is(err, backend.ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})
}
