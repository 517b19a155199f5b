package sample

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LynnColeArt/gudalt"
	"github.com/LynnColeArt/gudalt/blaslt"
)

// Config sizes a Runner.
type Config struct {
	M, N, K          int64
	BatchCount       int64
	Alpha, Beta      float32
	MaxWorkspaceSize int64
	TransA, TransB   blaslt.Operation
	Seed             uint64

	// VerifyStride checks every VerifyStride-th output element against the
	// reference; 1 checks all of them.
	VerifyStride int
}

// DefaultConfig is the 1024×512×1024 half-precision problem with a 32 MiB
// workspace.
func DefaultConfig() Config {
	return Config{
		M:                1024,
		N:                512,
		K:                1024,
		BatchCount:       1,
		Alpha:            1,
		Beta:             1,
		MaxWorkspaceSize: 32 * 1024 * 1024,
		TransA:           blaslt.OpN,
		TransB:           blaslt.OpN,
		Seed:             1,
		VerifyStride:     97,
	}
}

// Runner owns the operand buffers, stream and handle for repeated runs of a
// half-precision GEMM. Host copies of the inputs are kept for verification.
type Runner struct {
	cfg    Config
	ctx    *gudalt.Context
	Handle *blaslt.Handle
	Stream *gudalt.Stream

	A, B, C, D gudalt.DevicePtr
	Bias       gudalt.DevicePtr
	Workspace  gudalt.DevicePtr

	hostA, hostB, hostC, hostBias []float32

	biasEnabled bool
	biasSource  byte

	LastDuration time.Duration
}

// NewRunner allocates and fills every operand on ctx. On error nothing is
// left allocated.
func NewRunner(ctx *gudalt.Context, cfg Config) (r *Runner, err error) {
	if cfg.M <= 0 || cfg.N <= 0 || cfg.K <= 0 || cfg.BatchCount <= 0 {
		return nil, fmt.Errorf("runner: invalid shape m=%d n=%d k=%d batch=%d", cfg.M, cfg.N, cfg.K, cfg.BatchCount)
	}
	if cfg.VerifyStride <= 0 {
		cfg.VerifyStride = 1
	}

	r = &Runner{
		cfg:        cfg,
		ctx:        ctx,
		biasSource: 'A',
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	if r.Handle, err = blaslt.Create(ctx); err != nil {
		return nil, err
	}
	r.Stream = ctx.CreateStream()

	m, n, k, batch := int(cfg.M), int(cfg.N), int(cfg.K), int(cfg.BatchCount)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15))

	r.hostA = randomHalves(rng, m*k*batch)
	r.hostB = randomHalves(rng, k*n*batch)
	r.hostC = randomHalves(rng, m*n*batch)
	r.hostBias = randomHalves(rng, m)

	buffers := []struct {
		dst  *gudalt.DevicePtr
		host []float32
	}{
		{&r.A, r.hostA},
		{&r.B, r.hostB},
		{&r.C, r.hostC},
		{&r.D, make([]float32, m*n*batch)},
		{&r.Bias, r.hostBias},
	}
	for _, buf := range buffers {
		if *buf.dst, err = r.upload(buf.host); err != nil {
			return nil, err
		}
	}

	if cfg.MaxWorkspaceSize > 0 {
		if r.Workspace, err = ctx.Malloc(int(cfg.MaxWorkspaceSize)); err != nil {
			return nil, fmt.Errorf("allocate workspace: %w", err)
		}
	}
	r.biasEnabled = true
	return r, nil
}

// randomHalves returns values in [-1, 1) already rounded to half precision,
// so host copies match what the device holds.
func randomHalves(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = gudalt.FromFloat32(rng.Float32()*2 - 1).ToFloat32()
	}
	return v
}

func (r *Runner) upload(host []float32) (gudalt.DevicePtr, error) {
	halves := gudalt.Float16sFromFloat32(host)
	ptr, err := r.ctx.Malloc(len(halves) * 2)
	if err != nil {
		return gudalt.DevicePtr{}, fmt.Errorf("allocate operand: %w", err)
	}
	if err := r.ctx.Memcpy(ptr, halves, len(halves)*2, gudalt.MemcpyHostToDevice); err != nil {
		r.ctx.Free(ptr)
		return gudalt.DevicePtr{}, err
	}
	return ptr, nil
}

// SetBiasInfo enables or disables the bias vector. source names the operand
// whose rows the bias follows; 'A' and 'D' both give an m-element vector.
// A disabled bias is zero-filled so bias epilogues add nothing.
func (r *Runner) SetBiasInfo(enabled bool, source byte) error {
	if source != 'A' && source != 'D' {
		return fmt.Errorf("runner: unsupported bias source %q", source)
	}
	r.biasEnabled = enabled
	r.biasSource = source

	host := r.hostBias
	if !enabled {
		host = make([]float32, len(r.hostBias))
	}
	halves := gudalt.Float16sFromFloat32(host)
	return r.ctx.Memcpy(r.Bias, halves, len(halves)*2, gudalt.MemcpyHostToDevice)
}

// Args returns the routine arguments for this runner's buffers with the
// GELU + aux + bias epilogue.
func (r *Runner) Args() Args {
	return Args{
		TransA:           r.cfg.TransA,
		TransB:           r.cfg.TransB,
		Epilogue:         blaslt.EpilogueGeluAuxBias,
		M:                r.cfg.M,
		N:                r.cfg.N,
		K:                r.cfg.K,
		BatchCount:       r.cfg.BatchCount,
		Alpha:            r.cfg.Alpha,
		Beta:             r.cfg.Beta,
		A:                r.A,
		B:                r.B,
		C:                r.C,
		D:                r.D,
		Bias:             r.Bias,
		Workspace:        r.Workspace,
		MaxWorkspaceSize: r.cfg.MaxWorkspaceSize,
		Stream:           r.Stream,
	}
}

// AllocAux allocates an aux buffer matching Args' geometry. The caller
// frees it.
func (r *Runner) AllocAux() (gudalt.DevicePtr, error) {
	return r.ctx.Malloc(int(r.cfg.M*r.cfg.N*r.cfg.BatchCount) * 2)
}

// Run calls fn, waits for the stream and records the elapsed time.
func (r *Runner) Run(fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return err
	}
	if err := r.Stream.Synchronize(); err != nil {
		return err
	}
	r.LastDuration = time.Since(start)

	flops := 2 * float64(r.cfg.M) * float64(r.cfg.N) * float64(r.cfg.K) * float64(r.cfg.BatchCount)
	log.Info().
		Int64("m", r.cfg.M).Int64("n", r.cfg.N).Int64("k", r.cfg.K).Int64("batch", r.cfg.BatchCount).
		Dur("elapsed", r.LastDuration).
		Float64("gflops", flops/r.LastDuration.Seconds()/1e9).
		Msg("gemm finished")
	return nil
}

// Validate compares D, and aux when non-nil, against the reference for
// args' epilogue. Only every VerifyStride-th element is checked.
func (r *Runner) Validate(epilogue blaslt.Epilogue, aux gudalt.DevicePtr) (d, pre gudalt.VerificationResult) {
	cfg := r.cfg
	ref := newReference(Problem{
		TransA: cfg.TransA, TransB: cfg.TransB,
		Epilogue: epilogue,
		M:        int(cfg.M), N: int(cfg.N), K: int(cfg.K), Batch: int(cfg.BatchCount),
		Alpha: cfg.Alpha, Beta: cfg.Beta,
	}, r.hostA, r.hostB, r.hostC, r.biasHost())

	m, n := int(cfg.M), int(cfg.N)
	devD := r.D.Float16()
	var devAux gudalt.Float16Slice
	if !aux.IsNil() {
		devAux = aux.Float16()
	}

	var wantD, gotD, wantPre, gotPre []float32
	total := m * n * int(cfg.BatchCount)
	for idx := 0; idx < total; idx += cfg.VerifyStride {
		batch, rem := idx/(m*n), idx%(m*n)
		j, i := rem/m, rem%m
		t, out := ref.at(batch, i, j)

		wantD = append(wantD, float32(out))
		gotD = append(gotD, devD.GetFloat32(idx))
		if !aux.IsNil() {
			wantPre = append(wantPre, float32(t))
			gotPre = append(gotPre, devAux.GetFloat32(idx))
		}
	}

	tol := gudalt.HalfTolerance()
	return gudalt.VerifyFloat32Array(wantD, gotD, tol), gudalt.VerifyFloat32Array(wantPre, gotPre, tol)
}

func (r *Runner) biasHost() []float32 {
	if r.biasEnabled {
		return r.hostBias
	}
	return make([]float32, len(r.hostBias))
}

// Close waits for outstanding work and releases everything the runner
// allocated. It is safe to call more than once.
func (r *Runner) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if r.Stream != nil {
		keep(r.Stream.Destroy())
		r.Stream = nil
	}
	for _, ptr := range []*gudalt.DevicePtr{&r.A, &r.B, &r.C, &r.D, &r.Bias, &r.Workspace} {
		keep(r.ctx.Free(*ptr))
		*ptr = gudalt.DevicePtr{}
	}
	if r.Handle != nil {
		keep(r.Handle.Destroy())
		r.Handle = nil
	}
	return firstErr
}
