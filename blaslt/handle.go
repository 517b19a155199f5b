package blaslt

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/LynnColeArt/gudalt"
)

var handleIDs atomic.Uint64

// Handle is the library context. It binds a runtime context and the
// solutions that can run on its device. A Handle is safe for concurrent
// use by multiple Gemm objects.
type Handle struct {
	id        uint64
	ctx       *gudalt.Context
	isa       gudalt.ISA
	solutions []Solution
	destroyed atomic.Bool
}

// HandleOption customizes Create.
type HandleOption func(*Handle)

// WithISA makes the handle plan for isa instead of the device's detected ISA.
func WithISA(isa gudalt.ISA) HandleOption {
	return func(h *Handle) {
		h.isa = isa
	}
}

// WithSolutions replaces the built-in solution catalogue.
func WithSolutions(solutions []Solution) HandleOption {
	return func(h *Handle) {
		h.solutions = solutions
	}
}

// Create returns a handle bound to ctx.
func Create(ctx *gudalt.Context, opts ...HandleOption) (*Handle, error) {
	if ctx == nil {
		return nil, newError(StatusNotInitialized, "Create", "nil runtime context")
	}

	h := &Handle{
		id:        handleIDs.Add(1),
		ctx:       ctx,
		isa:       ctx.Device().ISA,
		solutions: DefaultSolutions(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.solutions = lo.Filter(h.solutions, func(s Solution, _ int) bool {
		return h.isa.Supports(s.MinISA)
	})
	if len(h.solutions) == 0 {
		return nil, newError(StatusNotSupported, "Create", "no solution runs on %s", h.isa)
	}

	log.Debug().
		Uint64("handle", h.id).
		Stringer("isa", h.isa).
		Int("solutions", len(h.solutions)).
		Msg("blaslt handle created")
	return h, nil
}

// Destroy invalidates the handle. Gemm objects built on it stop working.
func (h *Handle) Destroy() error {
	if h == nil || h.destroyed.Swap(true) {
		return newError(StatusNotInitialized, "Destroy", "handle already destroyed")
	}
	return nil
}

// Context returns the runtime context the handle is bound to.
func (h *Handle) Context() *gudalt.Context {
	return h.ctx
}

// ISA returns the instruction set the handle plans for.
func (h *Handle) ISA() gudalt.ISA {
	return h.isa
}

// Solutions returns the handle's runnable solutions in catalogue order.
func (h *Handle) Solutions() []Solution {
	return append([]Solution(nil), h.solutions...)
}

func (h *Handle) check(op string) error {
	if h == nil || h.destroyed.Load() {
		return newError(StatusNotInitialized, op, "handle is nil or destroyed")
	}
	return nil
}

func (h *Handle) solution(algo Algo) (Solution, bool) {
	if algo.handle != h.id {
		return Solution{}, false
	}
	return lo.Find(h.solutions, func(s Solution) bool {
		return s.Index == algo.index
	})
}
