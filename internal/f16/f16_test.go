package f16

import (
	"math"
	"testing"
)

func TestRoundTripExact(t *testing.T) {
	// Values exactly representable in half precision survive a round
	// trip unchanged.
	values := []float32{0, 1, -1, 0.5, 0.25, 2, 1024, -0.125, 65504}
	for _, v := range values {
		if got := From(Bits(v)); got != v {
			t.Errorf("From(Bits(%g)) = %g", v, got)
		}
	}
}

func TestKnownBits(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{1, 0x3c00},
		{-2, 0xc000},
		{65504, 0x7bff},
		{float32(math.Inf(1)), 0x7c00},
	}
	for _, tt := range tests {
		if got := Bits(tt.in); got != tt.want {
			t.Errorf("Bits(%g) = %#04x, want %#04x", tt.in, got, tt.want)
		}
	}
}

func TestPrecisionLoss(t *testing.T) {
	// Unit-range values keep about three decimal digits.
	for _, v := range []float32{0.1, 0.7, 0.999, 1.0 / 3.0} {
		got := From(Bits(v))
		if diff := math.Abs(float64(got - v)); diff > 5e-4 {
			t.Errorf("round trip of %g drifted by %g", v, diff)
		}
	}
}
