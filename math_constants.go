package gudalt

// Mathematical constants and configuration for GUDA computations
const (
	// Activation function saturation limits
	DefaultActivationSaturation = 10.0

	MathLn2       = 0.6931471805599453094 // ln(2)
	MathSqrt2OvPi = 0.7978845608028653559 // √(2/π)

	// GELU activation constants from Hendrycks & Gimpel paper
	// GELU(x) = 0.5 * x * (1 + tanh(√(2/π) * (x + 0.044715 * x³)))
	GELUSqrt2OverPi = MathSqrt2OvPi
	GELUCoefficient = 0.044715 // β coefficient
)
