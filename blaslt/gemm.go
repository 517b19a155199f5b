package blaslt

import (
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/LynnColeArt/gudalt"
)

// Gemm is one configured matrix multiply:
//
//	t   = alpha·op(A)·op(B) + beta·C (+ bias)
//	Aux = t           (aux epilogues)
//	D   = act(t)
//
// The call sequence is NewGemm → SetProblem → AlgoGetHeuristic →
// Initialize → Run. Initialize must be repeated whenever the problem or the
// chosen algorithm changes.
type Gemm struct {
	handle                     *Handle
	opA, opB                   Operation
	typeA, typeB, typeC, typeD DataType
	compute                    ComputeType

	prob *problem
	plan *plan
}

// NewGemm creates a Gemm for fixed operand layouts and types.
func NewGemm(handle *Handle, opA, opB Operation, typeA, typeB, typeC, typeD DataType, compute ComputeType) (*Gemm, error) {
	const op = "NewGemm"
	if err := handle.check(op); err != nil {
		return nil, err
	}
	if opA != OpN && opA != OpT || opB != OpN && opB != OpT {
		return nil, newError(StatusInvalidValue, op, "operations %s/%s", opA, opB)
	}
	if err := checkTypes(op, typeA, typeB, typeC, typeD, compute); err != nil {
		return nil, err
	}
	return &Gemm{
		handle:  handle,
		opA:     opA,
		opB:     opB,
		typeA:   typeA,
		typeB:   typeB,
		typeC:   typeC,
		typeD:   typeD,
		compute: compute,
	}, nil
}

// SetProblem binds shapes, epilogue and operands. Leading dimensions and
// batch strides are those of packed column-major matrices. Any previous
// Initialize is discarded.
func (g *Gemm) SetProblem(m, n, k, batch int64, epilogue GemmEpilogue, inputs GemmInputs) error {
	if err := g.handle.check("SetProblem"); err != nil {
		return err
	}
	p, err := newProblem(g, m, n, k, batch, epilogue, inputs)
	if err != nil {
		return err
	}
	g.prob = p
	g.plan = nil
	return nil
}

// AlgoGetHeuristic returns up to request candidates ranked best first.
// Only solutions whose workspace fits pref are considered; an empty result
// means no solution is feasible and is not an error.
func (g *Gemm) AlgoGetHeuristic(request int, pref GemmPreference) ([]HeuristicResult, error) {
	const op = "AlgoGetHeuristic"
	if err := g.handle.check(op); err != nil {
		return nil, err
	}
	if g.prob == nil {
		return nil, newError(StatusInvalidValue, op, "no problem set")
	}
	if request <= 0 {
		return nil, newError(StatusInvalidValue, op, "requested %d solutions", request)
	}

	p := g.prob
	cores := g.handle.ctx.Device().NumCores
	budget := pref.MaxWorkspaceBytes()

	feasible := lo.Filter(g.handle.solutions, func(s Solution, _ int) bool {
		return s.supports(p) && s.workspaceBytes(p) <= budget
	})
	sort.SliceStable(feasible, func(i, j int) bool {
		return feasible[i].cost(p, cores) < feasible[j].cost(p, cores)
	})
	if len(feasible) > request {
		feasible = feasible[:request]
	}

	results := lo.Map(feasible, func(s Solution, _ int) HeuristicResult {
		return HeuristicResult{
			Algo:          Algo{handle: g.handle.id, index: s.Index},
			SolutionName:  s.Name,
			WorkspaceSize: s.workspaceBytes(p),
			State:         StatusSuccess,
			WavesCount:    s.wavesCount(p, cores),
		}
	})

	outcome := "found"
	if len(results) == 0 {
		outcome = "empty"
	}
	heuristicQueries.WithLabelValues(outcome).Inc()

	log.Debug().
		Int("m", p.m).Int("n", p.n).Int("k", p.k).Int("batch", p.batch).
		Int64("max_workspace", budget).
		Int("returned", len(results)).
		Strs("solutions", lo.Map(results, func(r HeuristicResult, _ int) string { return r.SolutionName })).
		Msg("heuristic query")
	return results, nil
}

// IsAlgoSupported reports the workspace algo needs for the current problem,
// or an error when algo cannot run it.
func (g *Gemm) IsAlgoSupported(algo Algo) (int64, error) {
	const op = "IsAlgoSupported"
	if err := g.handle.check(op); err != nil {
		return 0, err
	}
	if g.prob == nil {
		return 0, newError(StatusInvalidValue, op, "no problem set")
	}
	s, ok := g.handle.solution(algo)
	if !ok {
		return 0, newError(StatusInvalidValue, op, "algo %d does not belong to this handle", algo.index)
	}
	if !s.supports(g.prob) {
		return 0, newError(StatusNotSupported, op, "solution %s cannot run this problem", s.Name)
	}
	return s.workspaceBytes(g.prob), nil
}

// Initialize prepares algo to run the current problem using workspace.
// workspace may be nil when the algo needs none.
func (g *Gemm) Initialize(algo Algo, workspace gudalt.DevicePtr) error {
	const op = "Initialize"
	need, err := g.IsAlgoSupported(algo)
	if err != nil {
		return err
	}
	if int64(workspace.Size()) < need {
		return newError(StatusInvalidValue, op, "workspace holds %d bytes, solution needs %d", workspace.Size(), need)
	}

	s, _ := g.handle.solution(algo)
	g.plan = &plan{
		prob:      *g.prob,
		sol:       s,
		layout:    s.workspaceLayout(g.prob),
		workspace: workspace,
		workers:   max(1, runtime.NumCPU()/s.lanes(g.prob)),
	}

	log.Debug().
		Str("solution", s.Name).
		Int64("workspace", need).
		Msg("gemm initialized")
	return nil
}

// Run enqueues the initialized GEMM on stream and returns without waiting.
// Execution faults are reported by stream.Synchronize.
func (g *Gemm) Run(stream *gudalt.Stream) error {
	const op = "Run"
	if err := g.handle.check(op); err != nil {
		return err
	}
	if g.plan == nil {
		return newError(StatusNotInitialized, op, "Initialize has not been called for the current problem")
	}
	if stream == nil {
		return newError(StatusInvalidValue, op, "nil stream")
	}

	pl := g.plan
	err := stream.Submit(func() error {
		start := time.Now()
		err := pl.execute()
		status := "ok"
		if err != nil {
			status = "error"
		}
		gemmRuns.WithLabelValues(pl.sol.Name, status).Inc()
		gemmDuration.WithLabelValues(pl.sol.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			return wrapError(StatusExecutionFailed, op, err, "solution %s", pl.sol.Name)
		}
		return nil
	})
	if err != nil {
		return wrapError(StatusExecutionFailed, op, err, "submit to stream %d", stream.ID())
	}
	return nil
}
