package blaslt

import (
	"fmt"
	"strings"

	"github.com/LynnColeArt/gudalt"
)

// Operation selects whether an operand is used as stored or transposed.
type Operation int

const (
	OpN Operation = iota // use the matrix as stored
	OpT                  // use the transpose
)

// String returns the BLAS letter for the operation
func (o Operation) String() string {
	switch o {
	case OpN:
		return "N"
	case OpT:
		return "T"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation accepts "N" or "T" in either case.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(s) {
	case "N":
		return OpN, nil
	case "T":
		return OpT, nil
	default:
		return 0, newError(StatusInvalidValue, "ParseOperation", "unknown operation %q", s)
	}
}

// DataType is the element type of an operand in device memory.
type DataType int

const (
	R16F  DataType = iota // IEEE half
	R16BF                 // bfloat16
	R32F                  // IEEE single
)

// Size returns the element size in bytes
func (t DataType) Size() int {
	switch t {
	case R16F, R16BF:
		return 2
	case R32F:
		return 4
	default:
		return 0
	}
}

// String returns the type name
func (t DataType) String() string {
	switch t {
	case R16F:
		return "f16"
	case R16BF:
		return "bf16"
	case R32F:
		return "f32"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

func (t DataType) valid() bool {
	return t.Size() != 0
}

// ComputeType is the accumulation precision.
type ComputeType int

const (
	Compute32F ComputeType = iota
)

// String returns the compute type name
func (c ComputeType) String() string {
	if c == Compute32F {
		return "compute32f"
	}
	return fmt.Sprintf("ComputeType(%d)", int(c))
}

// Activation is the element-wise function an epilogue applies last.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationRelu
	ActivationGelu
)

// Apply evaluates the activation
func (a Activation) Apply(x float32) float32 {
	switch a {
	case ActivationRelu:
		return gudalt.ReluFloat32(x)
	case ActivationGelu:
		return gudalt.GeluFloat32(x)
	default:
		return x
	}
}

// Epilogue selects the post-processing fused into the GEMM write-back.
type Epilogue int

const (
	EpilogueDefault     Epilogue = iota // D = t
	EpilogueRelu                        // D = relu(t)
	EpilogueBias                        // D = t + bias
	EpilogueReluBias                    // D = relu(t + bias)
	EpilogueGelu                        // D = gelu(t)
	EpilogueGeluBias                    // D = gelu(t + bias)
	EpilogueGeluAux                     // Aux = t, D = gelu(t)
	EpilogueGeluAuxBias                 // Aux = t + bias, D = gelu(t + bias)
)

var epilogueNames = map[Epilogue]string{
	EpilogueDefault:     "default",
	EpilogueRelu:        "relu",
	EpilogueBias:        "bias",
	EpilogueReluBias:    "relu_bias",
	EpilogueGelu:        "gelu",
	EpilogueGeluBias:    "gelu_bias",
	EpilogueGeluAux:     "gelu_aux",
	EpilogueGeluAuxBias: "gelu_aux_bias",
}

// String returns the epilogue name
func (e Epilogue) String() string {
	if name, ok := epilogueNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Epilogue(%d)", int(e))
}

// ParseEpilogue maps a name such as "gelu_aux_bias" to its Epilogue.
func ParseEpilogue(s string) (Epilogue, error) {
	s = strings.ToLower(strings.ReplaceAll(s, "-", "_"))
	for e, name := range epilogueNames {
		if name == s {
			return e, nil
		}
	}
	return 0, newError(StatusInvalidValue, "ParseEpilogue", "unknown epilogue %q", s)
}

func (e Epilogue) valid() bool {
	_, ok := epilogueNames[e]
	return ok
}

// HasBias reports whether the epilogue reads a bias vector
func (e Epilogue) HasBias() bool {
	switch e {
	case EpilogueBias, EpilogueReluBias, EpilogueGeluBias, EpilogueGeluAuxBias:
		return true
	}
	return false
}

// HasAux reports whether the epilogue writes the auxiliary buffer
func (e Epilogue) HasAux() bool {
	return e == EpilogueGeluAux || e == EpilogueGeluAuxBias
}

// Activation returns the activation applied to D
func (e Epilogue) Activation() Activation {
	switch e {
	case EpilogueRelu, EpilogueReluBias:
		return ActivationRelu
	case EpilogueGelu, EpilogueGeluBias, EpilogueGeluAux, EpilogueGeluAuxBias:
		return ActivationGelu
	}
	return ActivationNone
}
