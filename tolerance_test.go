package gudalt

import (
	"math"
	"strings"
	"testing"
)

func TestFloat32NearEqual(t *testing.T) {
	tol := DefaultTolerance()
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name string
		a, b float32
		want bool
	}{
		{"Exact", 1.5, 1.5, true},
		{"Signed zeros", 0, float32(math.Copysign(0, -1)), true},
		{"Within abs", 1e-8, 5e-8, true},
		{"Within rel", 1000, 1000.005, true},
		{"Within ULP", 1, math.Nextafter32(1, 2), true},
		{"Too far", 1, 1.001, false},
		{"NaN pair", nan, nan, true},
		{"NaN vs number", nan, 1, false},
		{"Inf pair", inf, inf, true},
		{"Opposite Inf", inf, -inf, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Float32NearEqual(tt.a, tt.b, tol); got != tt.want {
				t.Errorf("Float32NearEqual(%g, %g) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestHalfTolerance(t *testing.T) {
	tol := HalfTolerance()
	// One half-precision ulp at 4 is 2^-8
	if !Float32NearEqual(4, 4+1.0/256, tol) {
		t.Errorf("Expected a half ulp difference to pass")
	}
	if Float32NearEqual(4, 4.1, tol) {
		t.Errorf("Expected a 2.5%% difference to fail")
	}
}

func TestFloat32ULPDiff(t *testing.T) {
	if got := Float32ULPDiff(1, math.Nextafter32(1, 2)); got != 1 {
		t.Errorf("Adjacent floats: expected 1 ULP, got %d", got)
	}
	if got := Float32ULPDiff(1, -1); got != math.MaxInt32 {
		t.Errorf("Opposite signs: expected MaxInt32, got %d", got)
	}
}

func TestVerifyFloat32Array(t *testing.T) {
	expected := []float32{1, 2, 3, 4}
	actual := []float32{1, 2.5, 3, 3}

	result := VerifyFloat32Array(expected, actual, DefaultTolerance())
	if result.Passed() {
		t.Fatalf("Expected failures")
	}
	if result.NumErrors != 2 || result.FirstError != 1 || result.TotalItems != 4 {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.MaxAbsError != 1 {
		t.Errorf("MaxAbsError = %g, want 1", result.MaxAbsError)
	}
	if result.MaxRelError != 0.25 {
		t.Errorf("MaxRelError = %g, want 0.25", result.MaxRelError)
	}
	if !strings.HasPrefix(result.String(), "FAIL: 2/4") {
		t.Errorf("Unexpected summary %q", result.String())
	}

	ok := VerifyFloat32Array(expected, expected, DefaultTolerance())
	if !ok.Passed() || ok.FirstError != -1 {
		t.Errorf("Identical arrays should pass: %+v", ok)
	}

	mismatched := VerifyFloat32Array(expected, expected[:2], DefaultTolerance())
	if mismatched.Passed() {
		t.Errorf("Length mismatch should fail")
	}
}
