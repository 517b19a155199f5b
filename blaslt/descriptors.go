package blaslt

import (
	"github.com/LynnColeArt/gudalt"
)

// GemmPreference constrains the heuristic query.
type GemmPreference struct {
	maxWorkspaceBytes int64
}

// SetMaxWorkspaceBytes caps the workspace a returned candidate may need.
// Negative values are treated as zero.
func (p *GemmPreference) SetMaxWorkspaceBytes(n int64) {
	p.maxWorkspaceBytes = max(n, 0)
}

// MaxWorkspaceBytes returns the workspace cap.
func (p GemmPreference) MaxWorkspaceBytes() int64 {
	return p.maxWorkspaceBytes
}

// GemmEpilogue configures the post-processing fused into the GEMM.
// Bias and aux types default to D's type; the aux leading dimension
// defaults to m and the aux batch stride to ld × n.
type GemmEpilogue struct {
	mode           Epilogue
	biasType       DataType
	biasTypeSet    bool
	auxType        DataType
	auxTypeSet     bool
	auxLD          int64
	auxBatchStride int64
}

// SetMode selects the epilogue
func (e *GemmEpilogue) SetMode(mode Epilogue) {
	e.mode = mode
}

// SetBiasDataType sets the bias vector's element type
func (e *GemmEpilogue) SetBiasDataType(t DataType) {
	e.biasType = t
	e.biasTypeSet = true
}

// SetAuxDataType sets the auxiliary buffer's element type
func (e *GemmEpilogue) SetAuxDataType(t DataType) {
	e.auxType = t
	e.auxTypeSet = true
}

// SetAuxLeadingDimension sets the column stride of the auxiliary buffer
func (e *GemmEpilogue) SetAuxLeadingDimension(ld int64) {
	e.auxLD = ld
}

// SetAuxBatchStride sets the element distance between aux batch entries
func (e *GemmEpilogue) SetAuxBatchStride(stride int64) {
	e.auxBatchStride = stride
}

// Mode returns the configured epilogue
func (e GemmEpilogue) Mode() Epilogue {
	return e.mode
}

// GemmInputs bundles the device operands of one GEMM. The pointers are
// caller-owned and must stay valid until the work issued by Run completes.
type GemmInputs struct {
	a, b, c, d gudalt.DevicePtr
	bias, aux  gudalt.DevicePtr
	alpha      float32
	alphaSet   bool
	beta       float32
}

// SetA sets the A operand
func (in *GemmInputs) SetA(p gudalt.DevicePtr) { in.a = p }

// SetB sets the B operand
func (in *GemmInputs) SetB(p gudalt.DevicePtr) { in.b = p }

// SetC sets the C operand; it may be omitted when beta is zero
func (in *GemmInputs) SetC(p gudalt.DevicePtr) { in.c = p }

// SetD sets the output
func (in *GemmInputs) SetD(p gudalt.DevicePtr) { in.d = p }

// SetBias sets the bias vector (m elements)
func (in *GemmInputs) SetBias(p gudalt.DevicePtr) { in.bias = p }

// SetAux sets the auxiliary output
func (in *GemmInputs) SetAux(p gudalt.DevicePtr) { in.aux = p }

// SetAlpha sets the product scale. Unset means 1.
func (in *GemmInputs) SetAlpha(alpha float32) {
	in.alpha = alpha
	in.alphaSet = true
}

// SetBeta sets the C blend factor. Unset means 0.
func (in *GemmInputs) SetBeta(beta float32) {
	in.beta = beta
}
