package gudalt

import "math"

// Activation function implementations with proper numerical accuracy

// ReluFloat32 computes max(x, 0)
func ReluFloat32(x float32) float32 {
	if x > 0 {
		return x
	}
	return 0
}

// GeluFloat32 computes GELU with the tanh approximation used by fused
// GEMM epilogues:
// 0.5 * x * (1 + tanh(sqrt(2/π) * (x + 0.044715 * x^3)))
func GeluFloat32(x float32) float32 {
	x3 := x * x * x
	arg := GELUSqrt2OverPi * (x + GELUCoefficient*x3)
	return 0.5 * x * (1 + TanhFloat32(arg))
}

// TanhFloat32 computes tanh(x) with good accuracy
// Uses exp formula for best accuracy across all ranges
func TanhFloat32(x float32) float32 {
	// For large |x|, tanh saturates
	if x > DefaultActivationSaturation {
		return 1
	}
	if x < -DefaultActivationSaturation {
		return -1
	}
	if x < 0 {
		return -TanhFloat32(-x)
	}

	// Series near zero avoids the cancellation in (e^2x - 1)
	if x < 0.125 {
		x2 := x * x
		return x * (1 - x2/3 + 2*x2*x2/15)
	}
	exp2x := ExpFloat32(2 * x)
	return (exp2x - 1) / (exp2x + 1)
}

// ExpFloat32 computes exp(x) with good accuracy for float32
// Uses range reduction and polynomial approximation
func ExpFloat32(x float32) float32 {
	if x > 88.7 { // exp(88.7) ≈ max float32
		return math.MaxFloat32
	}
	if x < -87.3 { // exp(-87.3) ≈ min positive float32
		return 0
	}

	// exp(x) = 2^k * exp(r), |r| <= ln2/2
	k := int(math.Round(float64(x) / MathLn2))
	r := x - float32(k)*float32(MathLn2)

	r2 := r * r
	r3 := r2 * r
	r4 := r2 * r2
	r5 := r4 * r
	expR := 1.0 + r +
		0.4999999701976776*r2 +
		0.1666666567325592*r3 +
		0.0416666679084301*r4 +
		0.0083333337679505*r5

	return float32(math.Ldexp(float64(expR), k))
}
