package blaslt

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/LynnColeArt/gudalt"
)

// gemmCase describes one packed column-major GEMM used across the tests.
type gemmCase struct {
	name        string
	opA, opB    Operation
	types       [4]DataType // A, B, C, D
	m, n, k     int
	batch       int
	epilogue    Epilogue
	alpha, beta float32
}

var (
	halfTypes  = [4]DataType{R16F, R16F, R16F, R16F}
	bf16Types  = [4]DataType{R16BF, R16BF, R16BF, R16BF}
	floatTypes = [4]DataType{R32F, R32F, R32F, R32F}
	mixedTypes = [4]DataType{R16F, R16F, R32F, R32F}
)

// fixture owns the device operands of a gemmCase plus host copies of the
// inputs, already rounded to their device types.
type fixture struct {
	c      gemmCase
	ctx    *gudalt.Context
	handle *Handle

	hostA, hostB, hostC, hostBias []float32
	a, b, cPtr, d, bias, aux      gudalt.DevicePtr

	epi    GemmEpilogue
	inputs GemmInputs
}

func newFixture(t *testing.T, c gemmCase, opts ...HandleOption) *fixture {
	t.Helper()
	ctx := gudalt.NewTestContext(t)
	handle, err := Create(ctx, opts...)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rng := rand.New(rand.NewPCG(uint64(c.m*31+c.n), uint64(c.k*17+c.batch)))
	f := &fixture{c: c, ctx: ctx, handle: handle}
	tA, tB, tC, tD := c.types[0], c.types[1], c.types[2], c.types[3]

	f.hostA = randomHost(rng, c.m*c.k*c.batch, tA)
	f.hostB = randomHost(rng, c.k*c.n*c.batch, tB)
	f.hostC = randomHost(rng, c.m*c.n*c.batch, tC)
	f.hostBias = randomHost(rng, c.m, tD)

	f.a = upload(t, ctx, tA, f.hostA)
	f.b = upload(t, ctx, tB, f.hostB)
	f.cPtr = upload(t, ctx, tC, f.hostC)
	f.d = upload(t, ctx, tD, filled(c.m*c.n*c.batch, 7))
	f.bias = upload(t, ctx, tD, f.hostBias)
	f.aux = upload(t, ctx, tD, filled(c.m*c.n*c.batch, 7))

	f.epi.SetMode(c.epilogue)
	f.inputs.SetA(f.a)
	f.inputs.SetB(f.b)
	f.inputs.SetC(f.cPtr)
	f.inputs.SetD(f.d)
	f.inputs.SetBias(f.bias)
	f.inputs.SetAux(f.aux)
	f.inputs.SetAlpha(c.alpha)
	f.inputs.SetBeta(c.beta)
	return f
}

func (f *fixture) newGemm(t *testing.T) *Gemm {
	t.Helper()
	g, err := NewGemm(f.handle, f.c.opA, f.c.opB, f.c.types[0], f.c.types[1], f.c.types[2], f.c.types[3], Compute32F)
	if err != nil {
		t.Fatalf("NewGemm failed: %v", err)
	}
	if err := g.SetProblem(int64(f.c.m), int64(f.c.n), int64(f.c.k), int64(f.c.batch), f.epi, f.inputs); err != nil {
		t.Fatalf("SetProblem failed: %v", err)
	}
	return g
}

// workspaceFor allocates enough workspace for every result, or returns a
// nil pointer when none needs any.
func (f *fixture) workspaceFor(t *testing.T, results []HeuristicResult) gudalt.DevicePtr {
	t.Helper()
	var need int64
	for _, r := range results {
		need = max(need, r.WorkspaceSize)
	}
	if need == 0 {
		return gudalt.DevicePtr{}
	}
	ws := gudalt.MallocOrFail(t, f.ctx, int(need))
	t.Cleanup(func() { gudalt.FreeOrFail(t, f.ctx, ws) })
	return ws
}

// check compares D, and aux for aux epilogues, against the float64
// reference.
func (f *fixture) check(t *testing.T, label string) {
	t.Helper()
	c := f.c
	tol := toleranceFor(c.types[3])
	act := c.epilogue.Activation()

	var wantD, gotD, wantAux, gotAux []float32
	d := viewOf(f.d, c.types[3])
	aux := viewOf(f.aux, c.types[3])
	for b := 0; b < c.batch; b++ {
		for j := 0; j < c.n; j++ {
			for i := 0; i < c.m; i++ {
				pre := f.reference(b, i, j)
				idx := b*c.m*c.n + j*c.m + i
				wantD = append(wantD, float32(activate(act, pre)))
				gotD = append(gotD, d.at(idx))
				if c.epilogue.HasAux() {
					wantAux = append(wantAux, float32(pre))
					gotAux = append(gotAux, aux.at(idx))
				}
			}
		}
	}

	if r := gudalt.VerifyFloat32Array(wantD, gotD, tol); !r.Passed() {
		t.Errorf("%s: D %s", label, r)
	}
	if r := gudalt.VerifyFloat32Array(wantAux, gotAux, tol); !r.Passed() {
		t.Errorf("%s: aux %s", label, r)
	}
}

// reference returns alpha·op(A)·op(B) + beta·C (+ bias) at (i, j) of batch b
func (f *fixture) reference(b, i, j int) float64 {
	c := f.c
	var sum float64
	for l := 0; l < c.k; l++ {
		var av, bv float32
		if c.opA == OpN {
			av = f.hostA[b*c.m*c.k+l*c.m+i]
		} else {
			av = f.hostA[b*c.m*c.k+i*c.k+l]
		}
		if c.opB == OpN {
			bv = f.hostB[b*c.k*c.n+j*c.k+l]
		} else {
			bv = f.hostB[b*c.k*c.n+l*c.n+j]
		}
		sum += float64(av) * float64(bv)
	}
	t := float64(c.alpha)*sum + float64(c.beta)*float64(f.hostC[b*c.m*c.n+j*c.m+i])
	if c.epilogue.HasBias() {
		t += float64(f.hostBias[i])
	}
	return t
}

func activate(a Activation, x float64) float64 {
	switch a {
	case ActivationRelu:
		return math.Max(x, 0)
	case ActivationGelu:
		return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
	default:
		return x
	}
}

func toleranceFor(t DataType) gudalt.ToleranceConfig {
	switch t {
	case R16F:
		return gudalt.HalfTolerance()
	case R16BF:
		tol := gudalt.HalfTolerance()
		tol.AbsTol, tol.RelTol = 5e-2, 1e-2
		return tol
	default:
		return gudalt.ToleranceConfig{AbsTol: 1e-4, RelTol: 1e-4, CheckNaN: true, CheckInf: true}
	}
}

func randomHost(rng *rand.Rand, n int, t DataType) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = roundTo(t, rng.Float32()*2-1)
	}
	return v
}

func roundTo(t DataType, v float32) float32 {
	switch t {
	case R16F:
		return gudalt.FromFloat32(v).ToFloat32()
	case R16BF:
		return gudalt.ToBFloat16(v).ToFloat32()
	default:
		return v
	}
}

func filled(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func upload(t *testing.T, ctx *gudalt.Context, typ DataType, host []float32) gudalt.DevicePtr {
	t.Helper()
	ptr := gudalt.MallocOrFail(t, ctx, len(host)*typ.Size())
	view := viewOf(ptr, typ)
	for i, v := range host {
		view.set(i, v)
	}
	t.Cleanup(func() { gudalt.FreeOrFail(t, ctx, ptr) })
	return ptr
}
