package sample

import (
	"math"

	"github.com/LynnColeArt/gudalt/blaslt"
)

// Problem describes a GEMM for the reference implementation. Operands are
// host copies of packed column-major batches.
type Problem struct {
	TransA, TransB blaslt.Operation
	Epilogue       blaslt.Epilogue
	M, N, K, Batch int
	Alpha, Beta    float32
}

// Reference computes the unfused result in float64: pre holds
// alpha·op(A)·op(B) + beta·C + bias, out holds the activation of pre.
// bias may be nil when the epilogue does not use it.
func Reference(p Problem, a, b, c, bias []float32) (pre, out []float32) {
	ref := newReference(p, a, b, c, bias)
	size := p.M * p.N * p.Batch
	pre = make([]float32, size)
	out = make([]float32, size)
	for batch := 0; batch < p.Batch; batch++ {
		for j := 0; j < p.N; j++ {
			for i := 0; i < p.M; i++ {
				idx := batch*p.M*p.N + j*p.M + i
				t, d := ref.at(batch, i, j)
				pre[idx], out[idx] = float32(t), float32(d)
			}
		}
	}
	return pre, out
}

type reference struct {
	p        Problem
	a, b, c  []float32
	bias     []float32
	lda, ldb int
	act      blaslt.Activation
	hasBias  bool
}

func newReference(p Problem, a, b, c, bias []float32) *reference {
	r := &reference{
		p: p, a: a, b: b, c: c, bias: bias,
		lda: p.M, ldb: p.K,
		act:     p.Epilogue.Activation(),
		hasBias: p.Epilogue.HasBias(),
	}
	if p.TransA == blaslt.OpT {
		r.lda = p.K
	}
	if p.TransB == blaslt.OpT {
		r.ldb = p.N
	}
	return r
}

// at returns the pre-activation and activated value of D(i, j) in batch
func (r *reference) at(batch, i, j int) (pre, out float64) {
	p := r.p
	baseA, baseB, baseD := batch*p.M*p.K, batch*p.K*p.N, batch*p.M*p.N

	var sum float64
	for l := 0; l < p.K; l++ {
		var av, bv float32
		if p.TransA == blaslt.OpN {
			av = r.a[baseA+l*r.lda+i]
		} else {
			av = r.a[baseA+i*r.lda+l]
		}
		if p.TransB == blaslt.OpN {
			bv = r.b[baseB+j*r.ldb+l]
		} else {
			bv = r.b[baseB+l*r.ldb+j]
		}
		sum += float64(av) * float64(bv)
	}

	t := float64(p.Alpha) * sum
	if p.Beta != 0 {
		t += float64(p.Beta) * float64(r.c[baseD+j*p.M+i])
	}
	if r.hasBias {
		t += float64(r.bias[i])
	}
	return t, activate(r.act, t)
}

func activate(a blaslt.Activation, x float64) float64 {
	switch a {
	case blaslt.ActivationRelu:
		return math.Max(x, 0)
	case blaslt.ActivationGelu:
		return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
	default:
		return x
	}
}
