package blaslt

import (
	"github.com/LynnColeArt/gudalt"
)

// Solution is one kernel configuration the library can execute.
//
// A solution cuts D into MacroTile0 × MacroTile1 tiles (rows × columns of
// the column-major output), splits the k loop SplitK ways and works on up
// to BatchLanes batch entries at once. Efficiency is the relative mainloop
// throughput used by the heuristic's cost model.
type Solution struct {
	Index      int
	Name       string
	MacroTile0 int
	MacroTile1 int
	SplitK     int
	BatchLanes int
	MinISA     gudalt.ISA
	Efficiency float64
}

// Algo identifies a solution of a specific handle. It is returned by the
// heuristic query and consumed by Initialize.
type Algo struct {
	handle uint64
	index  int
}

// Index returns the solution index within the handle's catalogue.
func (a Algo) Index() int {
	return a.index
}

// HeuristicResult is one ranked candidate of a heuristic query.
type HeuristicResult struct {
	Algo          Algo
	SolutionName  string
	WorkspaceSize int64   // Bytes of workspace Initialize will require
	State         Status  // StatusSuccess for every returned candidate
	WavesCount    float32 // Tiles per core in one pass over the problem
}

const (
	// Smallest k slice a split-K partition may receive
	minSplitKChunk = 16

	// Relative cost of reducing one split-K partial element
	splitKReduceCost = 8.0
)

// DefaultSolutions returns the built-in catalogue, ordered by index.
func DefaultSolutions() []Solution {
	return []Solution{
		{Index: 0, Name: "Cijk_MT32x32_SK1_L1", MacroTile0: 32, MacroTile1: 32, SplitK: 1, BatchLanes: 1, MinISA: gudalt.ISAScalar, Efficiency: 0.50},
		{Index: 1, Name: "Cijk_MT64x64_SK1_L1", MacroTile0: 64, MacroTile1: 64, SplitK: 1, BatchLanes: 1, MinISA: gudalt.ISAScalar, Efficiency: 0.60},
		{Index: 2, Name: "Cijk_MT64x64_SK4_L1", MacroTile0: 64, MacroTile1: 64, SplitK: 4, BatchLanes: 1, MinISA: gudalt.ISAScalar, Efficiency: 0.60},
		{Index: 3, Name: "Cijk_MT128x64_SK1_L2_NEON", MacroTile0: 128, MacroTile1: 64, SplitK: 1, BatchLanes: 2, MinISA: gudalt.ISANEON, Efficiency: 0.90},
		{Index: 4, Name: "Cijk_MT128x128_SK1_L2_AVX2", MacroTile0: 128, MacroTile1: 128, SplitK: 1, BatchLanes: 2, MinISA: gudalt.ISAAVX2, Efficiency: 1.00},
		{Index: 5, Name: "Cijk_MT128x128_SK2_L2_AVX2", MacroTile0: 128, MacroTile1: 128, SplitK: 2, BatchLanes: 2, MinISA: gudalt.ISAAVX2, Efficiency: 1.00},
		{Index: 6, Name: "Cijk_MT256x128_SK1_L4_AVX512", MacroTile0: 256, MacroTile1: 128, SplitK: 1, BatchLanes: 4, MinISA: gudalt.ISAAVX512, Efficiency: 1.40},
		{Index: 7, Name: "Cijk_MT256x256_SK2_L4_AVX512", MacroTile0: 256, MacroTile1: 256, SplitK: 2, BatchLanes: 4, MinISA: gudalt.ISAAVX512, Efficiency: 1.40},
	}
}

// supports reports whether s can execute p.
func (s Solution) supports(p *problem) bool {
	if s.MacroTile0 <= 0 || s.MacroTile1 <= 0 || s.SplitK <= 0 || s.BatchLanes <= 0 {
		return false
	}
	return p.k >= s.SplitK*minSplitKChunk || s.SplitK == 1
}

func (s Solution) lanes(p *problem) int {
	return min(s.BatchLanes, p.batch)
}

// accumulatesInD reports whether partial products can be written straight
// into D. That needs an f32 D, a single k partition and no C read, since
// D may alias C.
func (s Solution) accumulatesInD(p *problem) bool {
	return p.typeD == R32F && s.SplitK == 1 && p.inputs.beta == 0
}

// workspaceLayout returns the per-lane float32 offsets of the staged A and
// B operands and of the split-K accumulators.
func (s Solution) workspaceLayout(p *problem) workspaceLayout {
	var l workspaceLayout
	l.lanes = s.lanes(p)

	if p.typeA != R32F {
		l.aElems = p.lda * p.colsA()
	}
	if p.typeB != R32F {
		l.bElems = p.ldb * p.colsB()
	}
	if !s.accumulatesInD(p) {
		l.accElems = s.SplitK * p.m * p.n
	}
	l.laneElems = l.aElems + l.bElems + l.accElems
	return l
}

// workspaceBytes is the workspace Initialize requires for s on p.
func (s Solution) workspaceBytes(p *problem) int64 {
	l := s.workspaceLayout(p)
	return int64(l.lanes) * int64(l.laneElems) * 4
}

// cost estimates the relative runtime of s on p with cores workers.
func (s Solution) cost(p *problem, cores int) float64 {
	tiles := ceilDiv(p.m, s.MacroTile0) * ceilDiv(p.n, s.MacroTile1) * s.SplitK
	lanes := s.lanes(p)
	waves := ceilDiv(p.batch, lanes) * ceilDiv(tiles*lanes, cores)

	tileFlops := 2 * float64(s.MacroTile0) * float64(s.MacroTile1) * float64(ceilDiv(p.k, s.SplitK))
	c := float64(waves) * tileFlops / s.Efficiency
	if s.SplitK > 1 {
		c += float64(s.SplitK) * float64(p.m) * float64(p.n) * float64(p.batch) * splitKReduceCost
	}
	return c
}

func (s Solution) wavesCount(p *problem, cores int) float32 {
	tiles := ceilDiv(p.m, s.MacroTile0) * ceilDiv(p.n, s.MacroTile1) * s.SplitK
	return float32(tiles*s.lanes(p)) / float32(cores)
}

type workspaceLayout struct {
	lanes     int
	aElems    int
	bElems    int
	accElems  int
	laneElems int
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
