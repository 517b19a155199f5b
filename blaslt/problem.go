package blaslt

import (
	"math"
	"math/bits"

	"github.com/LynnColeArt/gudalt"
)

// problem is a fully resolved GEMM: shapes, column-major geometry,
// epilogue defaults applied and operands checked against it.
type problem struct {
	opA, opB                   Operation
	typeA, typeB, typeC, typeD DataType
	biasType, auxType          DataType
	epilogue                   Epilogue

	m, n, k, batch                     int
	lda, ldb, ldc, ldd, auxLD          int
	strideA, strideB, strideC, strideD int
	strideAux                          int

	inputs GemmInputs
}

// supportedTypes lists the (A, B, C, D) combinations with f32 compute.
var supportedTypes = [][4]DataType{
	{R16F, R16F, R16F, R16F},
	{R16F, R16F, R32F, R32F},
	{R16BF, R16BF, R16BF, R16BF},
	{R16BF, R16BF, R32F, R32F},
	{R32F, R32F, R32F, R32F},
}

func checkTypes(op string, typeA, typeB, typeC, typeD DataType, compute ComputeType) error {
	if compute != Compute32F {
		return newError(StatusNotSupported, op, "compute type %s", compute)
	}
	want := [4]DataType{typeA, typeB, typeC, typeD}
	for _, combo := range supportedTypes {
		if combo == want {
			return nil
		}
	}
	return newError(StatusNotSupported, op, "type combination A=%s B=%s C=%s D=%s", typeA, typeB, typeC, typeD)
}

// rowsA and colsA are the stored dimensions of A
func (p *problem) rowsA() int {
	if p.opA == OpN {
		return p.m
	}
	return p.k
}

func (p *problem) colsA() int {
	if p.opA == OpN {
		return p.k
	}
	return p.m
}

func (p *problem) rowsB() int {
	if p.opB == OpN {
		return p.k
	}
	return p.n
}

func (p *problem) colsB() int {
	if p.opB == OpN {
		return p.n
	}
	return p.k
}

func (p *problem) alpha() float32 {
	if p.inputs.alphaSet {
		return p.inputs.alpha
	}
	return 1
}

// newProblem applies the default geometry for packed column-major operands
// and validates everything against the supplied buffers.
func newProblem(g *Gemm, m, n, k, batch int64, epi GemmEpilogue, inputs GemmInputs) (*problem, error) {
	const op = "SetProblem"

	for _, v := range []int64{m, n, k, batch} {
		if v <= 0 || v > math.MaxInt32 {
			return nil, newError(StatusInvalidValue, op, "shape m=%d n=%d k=%d batch=%d", m, n, k, batch)
		}
	}
	if !epi.mode.valid() {
		return nil, newError(StatusInvalidValue, op, "unknown epilogue %d", int(epi.mode))
	}
	if epi.auxLD < 0 || epi.auxLD > math.MaxInt32 || epi.auxBatchStride < 0 {
		return nil, newError(StatusInvalidValue, op, "aux leading dimension %d batch stride %d", epi.auxLD, epi.auxBatchStride)
	}

	p := &problem{
		opA: g.opA, opB: g.opB,
		typeA: g.typeA, typeB: g.typeB, typeC: g.typeC, typeD: g.typeD,
		biasType: g.typeD, auxType: g.typeD,
		epilogue: epi.mode,
		m:        int(m), n: int(n), k: int(k), batch: int(batch),
		inputs: inputs,
	}
	if epi.biasTypeSet {
		p.biasType = epi.biasType
	}
	if epi.auxTypeSet {
		p.auxType = epi.auxType
	}

	p.lda, p.ldb = p.rowsA(), p.rowsB()
	p.ldc, p.ldd = p.m, p.m
	p.strideA = p.lda * p.colsA()
	p.strideB = p.ldb * p.colsB()
	p.strideC = p.ldc * p.n
	p.strideD = p.ldd * p.n

	p.auxLD = int(epi.auxLD)
	if epi.auxLD == 0 {
		p.auxLD = p.m
	}
	p.strideAux = int(epi.auxBatchStride)
	if epi.auxBatchStride == 0 {
		p.strideAux = p.auxLD * p.n
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *problem) validate() error {
	const op = "SetProblem"
	in := p.inputs

	if err := checkOperand(op, "A", in.a, p.typeA, p.rowsA(), p.colsA(), p.lda, p.strideA, p.batch); err != nil {
		return err
	}
	if err := checkOperand(op, "B", in.b, p.typeB, p.rowsB(), p.colsB(), p.ldb, p.strideB, p.batch); err != nil {
		return err
	}
	if in.beta != 0 || !in.c.IsNil() {
		if err := checkOperand(op, "C", in.c, p.typeC, p.m, p.n, p.ldc, p.strideC, p.batch); err != nil {
			return err
		}
	}
	if err := checkOperand(op, "D", in.d, p.typeD, p.m, p.n, p.ldd, p.strideD, p.batch); err != nil {
		return err
	}

	if p.epilogue.HasBias() {
		if p.biasType != p.typeD && p.biasType != R32F {
			return newError(StatusNotSupported, op, "bias type %s with D type %s", p.biasType, p.typeD)
		}
		if err := checkOperand(op, "bias", in.bias, p.biasType, p.m, 1, p.m, p.m, 1); err != nil {
			return err
		}
	}

	if p.epilogue.HasAux() {
		if p.auxType != p.typeD && p.auxType != R32F {
			return newError(StatusNotSupported, op, "aux type %s with D type %s", p.auxType, p.typeD)
		}
		if p.auxLD < p.m {
			return newError(StatusInvalidValue, op, "aux leading dimension %d is less than m=%d", p.auxLD, p.m)
		}
		if p.batch > 1 && p.strideAux < p.auxLD*p.n {
			return newError(StatusInvalidValue, op, "aux batch stride %d overlaps batch entries (need >= %d)", p.strideAux, p.auxLD*p.n)
		}
		if err := checkOperand(op, "aux", in.aux, p.auxType, p.m, p.n, p.auxLD, p.strideAux, p.batch); err != nil {
			return err
		}
	}
	return nil
}

// checkOperand verifies that ptr holds a batch of rows × cols column-major
// matrices at leading dimension ld and batch stride stride.
func checkOperand(op, name string, ptr gudalt.DevicePtr, t DataType, rows, cols, ld, stride, batch int) error {
	if !t.valid() {
		return newError(StatusInvalidValue, op, "%s has unknown data type %d", name, int(t))
	}
	if ptr.IsNil() {
		return newError(StatusInvalidValue, op, "%s pointer is nil", name)
	}
	if ld < rows {
		return newError(StatusInvalidValue, op, "%s leading dimension %d is less than %d rows", name, ld, rows)
	}
	elems, ok := spanElems(rows, cols, ld, stride, batch)
	if !ok || elems > int64(ptr.Size()/t.Size()) {
		return newError(StatusInvalidValue, op, "%s buffer holds %d bytes, geometry spans %d×%d at ld %d stride %d over %d batches",
			name, ptr.Size(), rows, cols, ld, stride, batch)
	}
	return nil
}

// spanElems returns (batch-1)·stride + (cols-1)·ld + rows, the element
// count a strided batch touches, or false when it overflows int64.
// All arguments are non-negative and rows, cols, batch are at least 1.
func spanElems(rows, cols, ld, stride, batch int) (int64, bool) {
	hi1, batchSpan := bits.Mul64(uint64(batch-1), uint64(stride))
	hi2, colSpan := bits.Mul64(uint64(cols-1), uint64(ld))
	sum, c1 := bits.Add64(batchSpan, colSpan, 0)
	sum, c2 := bits.Add64(sum, uint64(rows), 0)
	if hi1|hi2|c1|c2 != 0 || sum > math.MaxInt64 {
		return 0, false
	}
	return int64(sum), true
}
