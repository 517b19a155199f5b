package gudalt

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestExecuteGridCoversEveryThread(t *testing.T) {
	grid := Dim3{X: 3, Y: 4, Z: 2}
	block := Dim3{X: 8, Y: 2, Z: 1}
	total := grid.Size() * block.Size()

	hits := make([]atomic.Int32, total)
	err := ExecuteGrid(func(tid ThreadID, _ ...interface{}) {
		if tid.BlockDim != block || tid.GridDim != grid {
			t.Errorf("Unexpected dims %+v / %+v", tid.BlockDim, tid.GridDim)
		}
		blockLinear := tid.BlockIdx.X + grid.X*(tid.BlockIdx.Y+grid.Y*tid.BlockIdx.Z)
		threadLinear := tid.ThreadIdx.X + block.X*(tid.ThreadIdx.Y+block.Y*tid.ThreadIdx.Z)
		hits[blockLinear*block.Size()+threadLinear].Add(1)
	}, grid, block)
	if err != nil {
		t.Fatalf("ExecuteGrid failed: %v", err)
	}

	for i := range hits {
		if n := hits[i].Load(); n != 1 {
			t.Fatalf("Thread %d ran %d times", i, n)
		}
	}
}

func TestExecuteGridEmpty(t *testing.T) {
	err := ExecuteGrid(func(ThreadID, ...interface{}) {
		t.Errorf("Kernel should not run for an empty grid")
	}, Dim3{X: 0, Y: 1, Z: 1}, Dim3{X: 256, Y: 1, Z: 1})
	if err != nil {
		t.Errorf("Empty grid returned %v", err)
	}
}

func TestExecuteGridPanic(t *testing.T) {
	var empty []float32
	var ran atomic.Int32
	err := ExecuteGrid(func(tid ThreadID, _ ...interface{}) {
		ran.Add(1)
		if tid.GlobalX() == 37 {
			_ = empty[tid.GlobalX()]
		}
	}, Dim3{X: 8, Y: 1, Z: 1}, Dim3{X: 16, Y: 1, Z: 1})

	if !IsExecutionError(err) || !errors.Is(err, ErrKernelFailed) {
		t.Fatalf("Expected kernel failure, got %v", err)
	}
	if ran.Load() == 0 {
		t.Errorf("No thread ran")
	}
}

func TestThreadIDGlobal(t *testing.T) {
	tid := ThreadID{
		BlockIdx:  Dim3{X: 2, Y: 1, Z: 3},
		ThreadIdx: Dim3{X: 5, Y: 1, Z: 0},
		BlockDim:  Dim3{X: 32, Y: 4, Z: 2},
	}
	if got := tid.GlobalX(); got != 69 {
		t.Errorf("GlobalX = %d, want 69", got)
	}
	if got := tid.GlobalY(); got != 5 {
		t.Errorf("GlobalY = %d, want 5", got)
	}
}

// Vector addition through the stream launch path
func TestLaunchVectorAdd(t *testing.T) {
	const N = 10000
	ctx := NewTestContext(t)

	a := MallocOrFail(t, ctx, N*4)
	b := MallocOrFail(t, ctx, N*4)
	c := MallocOrFail(t, ctx, N*4)
	defer FreeOrFail(t, ctx, a)
	defer FreeOrFail(t, ctx, b)
	defer FreeOrFail(t, ctx, c)

	av, bv := a.Float32(), b.Float32()
	for i := 0; i < N; i++ {
		av[i] = float32(i)
		bv[i] = float32(2 * i)
	}

	kernel := KernelFunc(func(tid ThreadID, args ...interface{}) {
		idx := tid.GlobalX()
		if idx >= N {
			return
		}
		x, y, z := args[0].([]float32), args[1].([]float32), args[2].([]float32)
		z[idx] = x[idx] + y[idx]
	})

	grid := Dim3{X: (N + DefaultBlockSize - 1) / DefaultBlockSize, Y: 1, Z: 1}
	block := Dim3{X: DefaultBlockSize, Y: 1, Z: 1}
	if err := ctx.LaunchFunc(kernel, grid, block, av, bv, c.Float32()); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	SynchronizeOrFail(t, ctx.DefaultStream())

	for i, v := range c.Float32() {
		if v != float32(3*i) {
			t.Fatalf("c[%d] = %g, want %d", i, v, 3*i)
		}
	}
}

func TestLaunchBlockTooLarge(t *testing.T) {
	ctx := NewTestContext(t)
	err := ctx.LaunchFunc(func(ThreadID, ...interface{}) {},
		Dim3{X: 1, Y: 1, Z: 1}, Dim3{X: MaxThreadsPerBlock + 1, Y: 1, Z: 1})
	if !IsInvalidArgError(err) {
		t.Errorf("Expected invalid argument error, got %v", err)
	}
}

// A kernel fault on a grid worker is held by the stream, and the stream
// keeps serving work afterwards.
func TestLaunchPanicFaultsStream(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	kernel := KernelFunc(func(tid ThreadID, args ...interface{}) {
		data := args[0].([]float32)
		data[tid.GlobalX()+1] = 1
	})
	one := Dim3{X: 1, Y: 1, Z: 1}
	if err := ctx.LaunchStream(kernel, one, one, stream, []float32{}); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	err := stream.Synchronize()
	if !IsExecutionError(err) || !errors.Is(err, ErrKernelFailed) {
		t.Fatalf("Expected kernel failure from Synchronize, got %v", err)
	}

	out := make([]float32, 2)
	if err := ctx.LaunchStream(kernel, one, one, stream, out); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	SynchronizeOrFail(t, stream)
	if out[1] != 1 {
		t.Errorf("Kernel after a fault did not run")
	}
}
