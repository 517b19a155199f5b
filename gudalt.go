package gudalt

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
)

// Device represents a compute device. In GUDA, this is the CPU with its
// cores and available memory. Each device has a unique ID and capabilities.
type Device struct {
	ID         int    // Unique device identifier
	Name       string // Human-readable device name
	TotalMem   uint64 // Memory budget of the owning context in bytes
	NumCores   int    // Number of CPU cores
	MaxThreads int    // Maximum concurrent threads
	ISA        ISA    // Widest vector ISA kernels may use
}

// Context represents an execution context for GUDA operations.
// It manages device resources, memory allocation, and stream execution.
// A Context must be created before any GUDA operations and should be
// destroyed when no longer needed.
type Context struct {
	device        *Device
	mu            sync.Mutex
	streams       map[int]*Stream
	streamID      int32
	memory        *MemoryPool
	defaultStream *Stream
}

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order, but
// operations in different streams may execute concurrently.
type Stream struct {
	id    int
	ctx   *Context
	tasks chan func() error
	done  chan struct{}

	// pending counts submitted tasks that have not finished; idle is
	// signalled on pendingMu whenever it drops to zero.
	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond

	submitMu  sync.Mutex
	destroyed bool

	faultMu sync.Mutex
	fault   error
}

// DevicePtr represents a pointer to device memory. The zero value is the
// null pointer. Use the view methods (Float32, Float16, Byte, ...) to
// access the underlying data.
type DevicePtr struct {
	ptr    unsafe.Pointer
	size   int
	offset int
}

// NewContext creates a context on the CPU device with its own memory pool
// and a default stream.
func NewContext(opts ...ContextOption) *Context {
	cfg := defaultContextConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	device := &Device{
		ID:         0,
		Name:       "CPU",
		TotalMem:   uint64(cfg.memoryLimit),
		NumCores:   runtime.NumCPU(),
		MaxThreads: runtime.NumCPU() * 2, // Hyperthreading
		ISA:        BestISA(),
	}

	ctx := &Context{
		device:  device,
		streams: make(map[int]*Stream),
		memory:  NewMemoryPool(cfg.memoryLimit),
	}
	ctx.defaultStream = ctx.CreateStream()

	log.Debug().
		Str("device", device.Name).
		Int("cores", device.NumCores).
		Stringer("isa", device.ISA).
		Int64("memory_limit", cfg.memoryLimit).
		Msg("context created")
	return ctx
}

// Context methods

// Device returns the device this context runs on.
func (ctx *Context) Device() *Device {
	return ctx.device
}

// Memory returns the context's memory pool.
func (ctx *Context) Memory() *MemoryPool {
	return ctx.memory
}

// DefaultStream returns the stream created with the context.
func (ctx *Context) DefaultStream() *Stream {
	return ctx.defaultStream
}

// CreateStream creates a new execution stream
func (ctx *Context) CreateStream() *Stream {
	id := int(atomic.AddInt32(&ctx.streamID, 1))
	stream := &Stream{
		id:    id,
		ctx:   ctx,
		tasks: make(chan func() error, StreamQueueDepth),
		done:  make(chan struct{}),
	}
	stream.idle = sync.NewCond(&stream.pendingMu)

	go stream.worker()

	ctx.mu.Lock()
	ctx.streams[id] = stream
	ctx.mu.Unlock()
	return stream
}

// Synchronize waits for all streams to complete and returns the first
// fault any of them reported.
func (ctx *Context) Synchronize() error {
	var firstErr error
	for _, stream := range ctx.snapshotStreams() {
		if err := stream.Synchronize(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Destroy drains and stops every stream of the context. Allocations still
// live afterwards are reported as leaked.
func (ctx *Context) Destroy() error {
	var firstErr error
	for _, stream := range ctx.snapshotStreams() {
		if err := stream.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	stats := ctx.memory.Stats()
	if stats.Live > 0 {
		log.Warn().
			Int("allocations", stats.Live).
			Int64("bytes", stats.InUse).
			Msg("context destroyed with live allocations")
	}
	return firstErr
}

func (ctx *Context) snapshotStreams() []*Stream {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	streams := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		streams = append(streams, s)
	}
	return streams
}

// Stream methods

// ID returns the stream identifier, unique within its context.
func (s *Stream) ID() int {
	return s.id
}

// Context returns the context the stream belongs to.
func (s *Stream) Context() *Context {
	return s.ctx
}

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		if err := runTask(task); err != nil {
			s.recordFault(err)
		}
		streamTasks.Inc()

		s.pendingMu.Lock()
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.pendingMu.Unlock()
	}
	close(s.done)
}

func runTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewExecutionError("Stream", fmt.Sprintf("task panicked: %v", r), ErrKernelFailed)
		}
	}()
	return task()
}

func (s *Stream) recordFault(err error) {
	s.faultMu.Lock()
	if s.fault == nil {
		s.fault = err
	}
	s.faultMu.Unlock()

	streamFaults.Inc()
	log.Error().Err(err).Int("stream", s.id).Msg("stream task failed")
}

// Submit adds a task to the stream. Tasks run one at a time in submission
// order; a task error is held as the stream's fault until Synchronize.
func (s *Stream) Submit(task func() error) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if s.destroyed {
		return ErrStreamDestroyed
	}
	s.pendingMu.Lock()
	s.pending++
	s.pendingMu.Unlock()

	s.tasks <- task
	return nil
}

// Synchronize waits for all tasks in the stream to complete and returns,
// then clears, the first fault raised since the last synchronization.
// It is safe to call concurrently with Submit from other goroutines.
func (s *Stream) Synchronize() error {
	s.pendingMu.Lock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	s.pendingMu.Unlock()

	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err := s.fault
	s.fault = nil
	return err
}

// FreeAsync releases ptr once every task submitted before it has finished.
// A zero ptr is ignored.
func (s *Stream) FreeAsync(ptr DevicePtr) error {
	if ptr.IsNil() {
		return nil
	}
	return s.Submit(func() error {
		return s.ctx.Free(ptr)
	})
}

// Destroy waits for queued work, stops the worker and detaches the stream
// from its context. Destroying twice is a no-op.
func (s *Stream) Destroy() error {
	s.submitMu.Lock()
	if s.destroyed {
		s.submitMu.Unlock()
		return nil
	}
	s.destroyed = true
	close(s.tasks)
	s.submitMu.Unlock()

	<-s.done

	s.ctx.mu.Lock()
	delete(s.ctx.streams, s.id)
	s.ctx.mu.Unlock()

	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err := s.fault
	s.fault = nil
	return err
}
