// Package sample drives the blaslt extension API the way an application
// would: a fused GEMM with a GELU + aux + bias epilogue, plus the Runner
// harness that owns the operand buffers around it.
package sample

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/LynnColeArt/gudalt"
	"github.com/LynnColeArt/gudalt/blaslt"
)

// ErrNoValidSolution is returned when the heuristic finds no solution that
// fits the workspace budget. Callers may retry with a larger budget.
var ErrNoValidSolution = errors.New("no valid solution found")

// Args are the operands of one GemmGeluAuxBiasExt call. All buffers are
// caller-owned half-precision, column-major, packed per batch entry.
type Args struct {
	TransA, TransB blaslt.Operation
	Epilogue       blaslt.Epilogue
	M, N, K        int64
	BatchCount     int64
	Alpha, Beta    float32

	A, B, C, D gudalt.DevicePtr
	Bias       gudalt.DevicePtr

	// Aux receives the pre-activation values. When nil, a temporary buffer
	// of M×N×BatchCount halves is allocated and released after the GEMM.
	Aux gudalt.DevicePtr

	Workspace        gudalt.DevicePtr
	MaxWorkspaceSize int64
	Stream           *gudalt.Stream
}

// GemmGeluAuxBiasExt issues one fused GEMM on args.Stream and returns
// without waiting for it. The caller synchronizes the stream before reading
// D or Aux.
func GemmGeluAuxBiasExt(handle *blaslt.Handle, args Args) (err error) {
	if args.Stream == nil {
		return fmt.Errorf("gemm gelu aux bias: nil stream")
	}
	if args.M <= 0 || args.N <= 0 || args.K <= 0 || args.BatchCount <= 0 {
		return fmt.Errorf("gemm gelu aux bias: invalid shape m=%d n=%d k=%d batch=%d",
			args.M, args.N, args.K, args.BatchCount)
	}
	m, n := args.M, args.N

	var pref blaslt.GemmPreference
	pref.SetMaxWorkspaceBytes(args.MaxWorkspaceSize)

	gemm, err := blaslt.NewGemm(handle, args.TransA, args.TransB,
		blaslt.R16F, blaslt.R16F, blaslt.R16F, blaslt.R16F, blaslt.Compute32F)
	if err != nil {
		return err
	}

	var epilogue blaslt.GemmEpilogue
	epilogue.SetMode(args.Epilogue)
	epilogue.SetBiasDataType(blaslt.R16F)
	epilogue.SetAuxLeadingDimension(m)
	epilogue.SetAuxBatchStride(m * n)

	aux := args.Aux
	if aux.IsNil() {
		aux, err = handle.Context().Malloc(int(m*n*args.BatchCount) * blaslt.R16F.Size())
		if err != nil {
			return fmt.Errorf("allocate aux buffer: %w", err)
		}
		// Ordered after the GEMM on the success path; immediate otherwise.
		defer func() {
			if ferr := releaseAfter(args.Stream, aux); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	var inputs blaslt.GemmInputs
	inputs.SetA(args.A)
	inputs.SetB(args.B)
	inputs.SetC(args.C)
	inputs.SetD(args.D)
	inputs.SetBias(args.Bias)
	inputs.SetAlpha(args.Alpha)
	inputs.SetBeta(args.Beta)
	inputs.SetAux(aux)
	if err := gemm.SetProblem(m, n, args.K, args.BatchCount, epilogue, inputs); err != nil {
		return err
	}

	const requestSolutions = 1
	results, err := gemm.AlgoGetHeuristic(requestSolutions, pref)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		log.Warn().
			Int64("m", m).Int64("n", n).Int64("k", args.K).
			Int64("max_workspace", args.MaxWorkspaceSize).
			Msg("no valid solution found")
		return ErrNoValidSolution
	}

	// The workspace is preallocated at MaxWorkspaceSize, which bounds every
	// returned candidate's WorkspaceSize.
	if err := gemm.Initialize(results[0].Algo, args.Workspace); err != nil {
		return err
	}
	return gemm.Run(args.Stream)
}

// releaseAfter frees ptr behind the work already queued on stream. A
// destroyed stream has nothing pending, so the free happens at once.
func releaseAfter(stream *gudalt.Stream, ptr gudalt.DevicePtr) error {
	err := stream.FreeAsync(ptr)
	if errors.Is(err, gudalt.ErrStreamDestroyed) {
		return stream.Context().Free(ptr)
	}
	return err
}
