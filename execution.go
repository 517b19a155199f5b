package gudalt

import (
	"fmt"
	"runtime"
	"sync"
)

// Dim3 represents 3D dimensions for grid and block configurations.
// This matches CUDA's dim3 structure for kernel launch parameters.
type Dim3 struct {
	X, Y, Z int
}

// ThreadID identifies a thread's position within the execution hierarchy.
// It provides the same indexing semantics as CUDA's built-in variables:
// blockIdx, threadIdx, blockDim, and gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Block index within the grid
	ThreadIdx Dim3 // Thread index within the block
	BlockDim  Dim3 // Dimensions of the block
	GridDim   Dim3 // Dimensions of the grid
}

// Kernel represents a compute kernel that can be executed in parallel.
// Implementations should be thread-safe as Execute will be called
// concurrently from multiple threads.
type Kernel interface {
	Execute(tid ThreadID, args ...interface{})
}

// KernelFunc is a function that can be launched as a kernel.
// It receives thread identification and variadic arguments.
type KernelFunc func(tid ThreadID, args ...interface{})

// Execute implements Kernel
func (fn KernelFunc) Execute(tid ThreadID, args ...interface{}) {
	fn(tid, args...)
}

// Launch executes a kernel on the default stream
func (ctx *Context) Launch(kernel Kernel, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchStream(kernel, grid, block, ctx.defaultStream, args...)
}

// LaunchFunc executes a kernel function on the default stream
func (ctx *Context) LaunchFunc(fn KernelFunc, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchStream(fn, grid, block, ctx.defaultStream, args...)
}

// LaunchStream executes a kernel on a specific stream
func (ctx *Context) LaunchStream(kernel Kernel, grid, block Dim3, stream *Stream, args ...interface{}) error {
	if block.Size() > MaxThreadsPerBlock {
		return NewInvalidArgError("Launch", "block exceeds MaxThreadsPerBlock")
	}
	return stream.Submit(func() error {
		return ExecuteGrid(kernel.Execute, grid, block, args...)
	})
}

// ExecuteGrid runs kernelFunc for every thread of grid × block and returns
// when all of them have finished. Blocks are spread over one goroutine per
// core; threads of a block run sequentially on the same goroutine.
//
// A panicking thread stops the rest of its worker's blocks and is returned
// as an execution error wrapping ErrKernelFailed. Only the first panic is
// reported.
func ExecuteGrid(kernelFunc func(ThreadID, ...interface{}), grid, block Dim3, args ...interface{}) error {
	gridSize := grid.Size()
	blockSize := block.Size()
	if gridSize == 0 || blockSize == 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if gridSize < numWorkers {
		numWorkers = gridSize
	}

	// Cache-aware scheduling: each worker processes a contiguous run of blocks
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	var (
		wg       sync.WaitGroup
		faultMu  sync.Mutex
		firstErr error
	)
	for startBlock := 0; startBlock < gridSize; startBlock += blocksPerWorker {
		endBlock := min(startBlock+blocksPerWorker, gridSize)

		wg.Add(1)
		go func(startBlock, endBlock int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					faultMu.Lock()
					if firstErr == nil {
						firstErr = NewExecutionError("ExecuteGrid",
							fmt.Sprintf("kernel panicked in blocks [%d,%d): %v", startBlock, endBlock, r), ErrKernelFailed)
					}
					faultMu.Unlock()
				}
			}()
			for blockID := startBlock; blockID < endBlock; blockID++ {
				blockIdx := linearTo3D(blockID, grid)
				for threadID := 0; threadID < blockSize; threadID++ {
					kernelFunc(ThreadID{
						BlockIdx:  blockIdx,
						ThreadIdx: linearTo3D(threadID, block),
						BlockDim:  block,
						GridDim:   grid,
					}, args...)
				}
			}
		}(startBlock, endBlock)
	}
	wg.Wait()
	return firstErr
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}

// Helper functions

// GlobalX returns the global X index
func (tid ThreadID) GlobalX() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalY returns the global Y index
func (tid ThreadID) GlobalY() int {
	return tid.BlockIdx.Y*tid.BlockDim.Y + tid.ThreadIdx.Y
}

// Size returns the total number of elements
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}
