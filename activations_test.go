package gudalt

import (
	"math"
	"testing"
)

func geluTanhRef(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

func TestGeluAccuracy(t *testing.T) {
	for x := -8.0; x <= 8.0; x += 0.0625 {
		got := GeluFloat32(float32(x))
		want := geluTanhRef(x)
		if err := math.Abs(float64(got) - want); err > 1e-5+1e-5*math.Abs(want) {
			t.Errorf("GeluFloat32(%g): expected %g, got %g (error: %e)", x, want, got, err)
		}
	}
}

func TestGeluLimits(t *testing.T) {
	if got := GeluFloat32(0); got != 0 {
		t.Errorf("GeluFloat32(0): expected 0, got %g", got)
	}
	if got := GeluFloat32(20); got != 20 {
		t.Errorf("GeluFloat32(20): expected identity for large x, got %g", got)
	}
	if got := GeluFloat32(-20); got != 0 {
		t.Errorf("GeluFloat32(-20): expected 0 for very negative x, got %g", got)
	}
}

func TestTanhAccuracy(t *testing.T) {
	testCases := []float32{
		0.0, 0.01, 0.1, 0.124, 0.125, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0,
		-0.01, -0.5, -1.0, -2.0, -3.0, -5.0, -10.0,
	}

	for _, x := range testCases {
		got := TanhFloat32(x)
		want := math.Tanh(float64(x))
		if err := math.Abs(float64(got) - want); err > 2e-6 {
			t.Errorf("TanhFloat32(%g): expected %g, got %g (error: %e)", x, want, got, err)
		}
	}
}

func TestExpAccuracy(t *testing.T) {
	for x := -80.0; x <= 80.0; x += 0.37 {
		got := ExpFloat32(float32(x))
		want := math.Exp(float64(float32(x)))
		if rel := math.Abs(float64(got)-want) / want; rel > 2e-5 {
			t.Errorf("ExpFloat32(%g): expected %g, got %g (rel error: %e)", x, want, got, rel)
		}
	}
	if got := ExpFloat32(100); got != math.MaxFloat32 {
		t.Errorf("ExpFloat32(100): expected MaxFloat32, got %g", got)
	}
	if got := ExpFloat32(-100); got != 0 {
		t.Errorf("ExpFloat32(-100): expected 0, got %g", got)
	}
}

func TestRelu(t *testing.T) {
	for _, tc := range []struct{ in, want float32 }{{-1, 0}, {0, 0}, {2.5, 2.5}} {
		if got := ReluFloat32(tc.in); got != tc.want {
			t.Errorf("ReluFloat32(%g): expected %g, got %g", tc.in, tc.want, got)
		}
	}
}
