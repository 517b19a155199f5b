package blaslt

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/LynnColeArt/gudalt"
)

// plan is an initialized Gemm captured by value, so a later SetProblem or
// Initialize does not disturb work already queued on a stream.
type plan struct {
	prob      problem
	sol       Solution
	layout    workspaceLayout
	workspace gudalt.DevicePtr
	workers   int
}

// execute runs every batch entry. Batches are spread over the solution's
// lanes; each lane owns a disjoint slice of the workspace.
func (pl *plan) execute() error {
	p := &pl.prob
	ws := pl.workspace.Float32()

	free := make(chan int, pl.layout.lanes)
	for lane := 0; lane < pl.layout.lanes; lane++ {
		free <- lane
	}

	var g errgroup.Group
	g.SetLimit(pl.layout.lanes)
	for b := 0; b < p.batch; b++ {
		goSafe(&g, func() error {
			lane := <-free
			defer func() { free <- lane }()

			var laneWS []float32
			if pl.layout.laneElems > 0 {
				off := lane * pl.layout.laneElems
				laneWS = ws[off : off+pl.layout.laneElems]
			}
			return pl.runBatch(b, laneWS)
		})
	}
	return g.Wait()
}

func (pl *plan) runBatch(b int, ws []float32) error {
	p := &pl.prob
	l := pl.layout

	aR := stage(p.inputs.a, p.typeA, b*p.strideA, p.lda, p.colsA(), p.rowsA(), ws[:l.aElems])
	bR := stage(p.inputs.b, p.typeB, b*p.strideB, p.ldb, p.colsB(), p.rowsB(), ws[l.aElems:l.aElems+l.bElems])

	// Partial products land in n × m row-major accumulators, the row-major
	// reading of column-major m × n.
	var acc []blas32.General
	if pl.sol.accumulatesInD(p) {
		d := p.inputs.d.Float32()[b*p.strideD:]
		acc = []blas32.General{{Rows: p.n, Cols: p.m, Stride: p.ldd, Data: d}}
	} else {
		accWS := ws[l.aElems+l.bElems:]
		for s := 0; s < pl.sol.SplitK; s++ {
			acc = append(acc, blas32.General{
				Rows: p.n, Cols: p.m, Stride: p.m,
				Data: accWS[s*p.m*p.n : (s+1)*p.m*p.n],
			})
		}
	}

	if err := pl.mainloop(aR, bR, acc); err != nil {
		return err
	}
	return pl.epilogue(b, acc)
}

// stage returns operand batch entry b as a row-major blas32 view. Column-
// major rows × cols at ld reads row-major as cols × rows at stride ld.
// Non-f32 operands are widened into dst first.
func stage(ptr gudalt.DevicePtr, t DataType, offset, ld, cols, rows int, dst []float32) blas32.General {
	view := blas32.General{Rows: cols, Cols: rows, Stride: ld}
	n := ld*(cols-1) + rows

	if t == R32F {
		view.Data = ptr.Float32()[offset : offset+n]
		return view
	}

	src := viewOf(ptr, t)
	for i := 0; i < n; i++ {
		dst[i] = src.at(offset + i)
	}
	view.Data = dst[:n]
	return view
}

// mainloop computes acc[s] = op(A)·op(B) restricted to k partition s, one
// macro tile per task. In row-major terms: acc = op(Bᵀ)·op(Aᵀ).
func (pl *plan) mainloop(aR, bR blas32.General, acc []blas32.General) error {
	p := &pl.prob
	sol := pl.sol

	tB := blas.NoTrans
	if p.opB == OpT {
		tB = blas.Trans
	}
	tA := blas.NoTrans
	if p.opA == OpT {
		tA = blas.Trans
	}
	kChunk := ceilDiv(p.k, sol.SplitK)

	var g errgroup.Group
	g.SetLimit(pl.workers)
	for s := range acc {
		k0, k1 := s*kChunk, min((s+1)*kChunk, p.k)
		for j0 := 0; j0 < p.n; j0 += sol.MacroTile1 {
			j1 := min(j0+sol.MacroTile1, p.n)
			for i0 := 0; i0 < p.m; i0 += sol.MacroTile0 {
				i1 := min(i0+sol.MacroTile0, p.m)

				goSafe(&g, func() error {
					var subB, subA blas32.General
					if tB == blas.NoTrans {
						subB = sub(bR, j0, j1, k0, k1)
					} else {
						subB = sub(bR, k0, k1, j0, j1)
					}
					if tA == blas.NoTrans {
						subA = sub(aR, k0, k1, i0, i1)
					} else {
						subA = sub(aR, i0, i1, k0, k1)
					}
					blas32.Gemm(tB, tA, 1, subB, subA, 0, sub(acc[s], j0, j1, i0, i1))
					return nil
				})
			}
		}
	}
	return g.Wait()
}

// epilogue reduces the k partitions and writes Aux and D for batch entry b.
// One thread per output element: X walks rows of D, the block Y index is
// the column.
func (pl *plan) epilogue(b int, acc []blas32.General) error {
	p := &pl.prob
	alpha, beta := p.alpha(), p.inputs.beta
	act := p.epilogue.Activation()

	var c, bias, aux elemView
	if beta != 0 {
		c = viewOf(p.inputs.c, p.typeC)
	}
	if p.epilogue.HasBias() {
		bias = viewOf(p.inputs.bias, p.biasType)
	}
	if p.epilogue.HasAux() {
		aux = viewOf(p.inputs.aux, p.auxType)
	}
	d := viewOf(p.inputs.d, p.typeD)

	grid := gudalt.Dim3{X: ceilDiv(p.m, gudalt.DefaultBlockSize), Y: p.n, Z: 1}
	block := gudalt.Dim3{X: gudalt.DefaultBlockSize, Y: 1, Z: 1}

	return gudalt.ExecuteGrid(func(tid gudalt.ThreadID, _ ...interface{}) {
		i := tid.GlobalX()
		if i >= p.m {
			return
		}
		j := tid.GlobalY()

		var sum float32
		for s := range acc {
			sum += acc[s].Data[j*acc[s].Stride+i]
		}
		t := alpha * sum
		if c != nil {
			t += beta * c.at(b*p.strideC+j*p.ldc+i)
		}
		if bias != nil {
			t += bias.at(i)
		}
		if aux != nil {
			aux.set(b*p.strideAux+j*p.auxLD+i, t)
		}
		d.set(b*p.strideD+j*p.ldd+i, act.Apply(t))
	}, grid, block)
}

// sub returns rows [r0,r1) × cols [c0,c1) of a row-major view
func sub(g blas32.General, r0, r1, c0, c1 int) blas32.General {
	return blas32.General{
		Rows:   r1 - r0,
		Cols:   c1 - c0,
		Stride: g.Stride,
		Data:   g.Data[r0*g.Stride+c0:],
	}
}

// goSafe runs fn on g, turning a panic into an error so a bad kernel
// faults the stream instead of the process.
func goSafe(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("kernel panic: %v", r)
			}
		}()
		return fn()
	})
}

// elemView reads and writes device elements as float32.
type elemView interface {
	at(i int) float32
	set(i int, v float32)
}

type f32View []float32

func (v f32View) at(i int) float32     { return v[i] }
func (v f32View) set(i int, x float32) { v[i] = x }

type f16View struct{ gudalt.Float16Slice }

func (v f16View) at(i int) float32     { return v.GetFloat32(i) }
func (v f16View) set(i int, x float32) { v.SetFloat32(i, x) }

type bf16View struct{ gudalt.BFloat16Slice }

func (v bf16View) at(i int) float32     { return v.GetFloat32(i) }
func (v bf16View) set(i int, x float32) { v.SetFloat32(i, x) }

func viewOf(ptr gudalt.DevicePtr, t DataType) elemView {
	switch t {
	case R16F:
		return f16View{ptr.Float16()}
	case R16BF:
		return bf16View{ptr.BFloat16()}
	default:
		return f32View(ptr.Float32())
	}
}
