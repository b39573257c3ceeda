package pixfmt

import "testing"

func TestByCode(t *testing.T) {
	tests := []struct {
		name      string
		code      uint32
		wantNil   bool
		wantName  string
		wantBPP   int32
		wantPlane int
	}{
		{name: "argb8888", code: ARGB8888, wantName: "argb8888", wantBPP: 32, wantPlane: 1},
		{name: "nv12", code: NV12, wantName: "nv12", wantBPP: 8, wantPlane: 2},
		{name: "yuv420", code: YUV420, wantName: "yuv420", wantBPP: 8, wantPlane: 3},
		{name: "unknown", code: 0xdeadbeef, wantNil: true},
		{name: "zero", code: 0, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ByCode(tt.code)
			if tt.wantNil {
				if f != nil {
					t.Fatalf("ByCode(%#x) = %v, want nil", tt.code, f)
				}
				return
			}
			if f == nil {
				t.Fatalf("ByCode(%#x) = nil", tt.code)
			}
			if f.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", f.Name, tt.wantName)
			}
			if f.BPP != tt.wantBPP {
				t.Errorf("BPP = %d, want %d", f.BPP, tt.wantBPP)
			}
			if f.PlaneCount() != tt.wantPlane {
				t.Errorf("PlaneCount() = %d, want %d", f.PlaneCount(), tt.wantPlane)
			}
		})
	}
}

func TestOpaqueSubstitute(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		want uint32 // 0 means no substitute
	}{
		{"argb8888 to xrgb8888", ARGB8888, XRGB8888},
		{"abgr8888 to xbgr8888", ABGR8888, XBGR8888},
		{"argb2101010 to xrgb2101010", ARGB2101010, XRGB2101010},
		{"xrgb8888 has none", XRGB8888, 0},
		{"nv12 has none", NV12, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := ByCode(tt.code).OpaqueSubstitute()
			if tt.want == 0 {
				if sub != nil {
					t.Errorf("OpaqueSubstitute() = %v, want nil", sub)
				}
				return
			}
			if sub == nil || sub.Code != tt.want {
				t.Errorf("OpaqueSubstitute() = %v, want code %#x", sub, tt.want)
			}
			if !sub.Opaque {
				t.Errorf("substitute %v is not opaque", sub)
			}
		})
	}
}

func TestPlaneSize(t *testing.T) {
	nv12 := ByCode(NV12)

	if w, h := nv12.PlaneSize(0, 640, 480); w != 640 || h != 480 {
		t.Errorf("PlaneSize(0) = %dx%d, want 640x480", w, h)
	}
	if w, h := nv12.PlaneSize(1, 640, 480); w != 320 || h != 240 {
		t.Errorf("PlaneSize(1) = %dx%d, want 320x240", w, h)
	}
	// Odd sizes round up.
	if w, h := nv12.PlaneSize(1, 641, 481); w != 321 || h != 241 {
		t.Errorf("PlaneSize(1, odd) = %dx%d, want 321x241", w, h)
	}
}

func TestVariants(t *testing.T) {
	tests := []struct {
		code uint32
		want Variant
	}{
		{ARGB8888, VariantRGBA},
		{XRGB8888, VariantRGBX},
		{NV12, VariantYUV},
		{YUV420, VariantYU_V},
		{YUYV, VariantYXUXV},
		{XYUV8888, VariantXYUV},
	}
	for _, tt := range tests {
		if got := ByCode(tt.code).Variant; got != tt.want {
			t.Errorf("variant of %v = %v, want %v", ByCode(tt.code), got, tt.want)
		}
	}
}
