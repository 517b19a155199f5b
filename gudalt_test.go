package gudalt

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStreamOrdering(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	var order []int
	for i := 0; i < 100; i++ {
		if err := stream.Submit(func() error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	SynchronizeOrFail(t, stream)

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("Tasks ran out of order (-want +got):\n%s", diff)
	}
}

func TestStreamSubmitIsAsync(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	release := make(chan struct{})
	var done atomic.Bool
	if err := stream.Submit(func() error {
		<-release
		done.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if done.Load() {
		t.Fatalf("Task completed before it was released")
	}
	close(release)
	SynchronizeOrFail(t, stream)
	if !done.Load() {
		t.Errorf("Synchronize returned before the task finished")
	}
}

func TestStreamFaultReportedAtSynchronize(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()
	faults := testutil.ToFloat64(streamFaults)

	boom := errors.New("boom")
	var ranAfter atomic.Bool
	if err := stream.Submit(func() error { return boom }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := stream.Submit(func() error { panic("kernel bug") }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := stream.Submit(func() error { ranAfter.Store(true); return nil }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	err := stream.Synchronize()
	if !errors.Is(err, boom) {
		t.Errorf("Expected the first fault, got %v", err)
	}
	if !ranAfter.Load() {
		t.Errorf("Tasks after a fault should still run")
	}
	if got := testutil.ToFloat64(streamFaults) - faults; got != 2 {
		t.Errorf("Expected 2 recorded faults, got %v", got)
	}

	// The fault is cleared once reported
	SynchronizeOrFail(t, stream)
}

func TestStreamConcurrentSubmitAndSynchronize(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	const goroutines, tasks = 8, 200
	var count atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < tasks; i++ {
				if err := stream.Submit(func() error {
					count.Add(1)
					return nil
				}); err != nil {
					t.Errorf("Submit failed: %v", err)
					return
				}
				if i%10 == 0 {
					if err := stream.Synchronize(); err != nil {
						t.Errorf("Synchronize failed: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	SynchronizeOrFail(t, stream)
	if got := count.Load(); got != goroutines*tasks {
		t.Errorf("Expected %d tasks run, got %d", goroutines*tasks, got)
	}
}

func TestStreamPanicIsExecutionError(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	if err := stream.Submit(func() error { panic("index out of range") }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	err := stream.Synchronize()
	if !IsExecutionError(err) || !errors.Is(err, ErrKernelFailed) {
		t.Errorf("Expected kernel failure, got %v", err)
	}
}

func TestFreeAsyncIsStreamOrdered(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()
	ptr := MallocOrFail(t, ctx, 1024)

	release := make(chan struct{})
	var sawLive atomic.Bool
	if err := stream.Submit(func() error {
		<-release
		sawLive.Store(ctx.Memory().Stats().Live == 1)
		ptr.Float32()[0] = 1 // still owned by the queued work
		return nil
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := stream.FreeAsync(ptr); err != nil {
		t.Fatalf("FreeAsync failed: %v", err)
	}

	if live := ctx.Memory().Stats().Live; live != 1 {
		t.Errorf("FreeAsync released memory before earlier work ran: %d live", live)
	}
	close(release)
	SynchronizeOrFail(t, stream)

	if !sawLive.Load() {
		t.Errorf("Allocation was released while the preceding task ran")
	}
	if live := ctx.Memory().Stats().Live; live != 0 {
		t.Errorf("Expected allocation released after Synchronize, %d live", live)
	}
}

func TestFreeAsyncNil(t *testing.T) {
	ctx := NewTestContext(t)
	if err := ctx.DefaultStream().FreeAsync(DevicePtr{}); err != nil {
		t.Errorf("FreeAsync of nil pointer should be a no-op, got %v", err)
	}
}

func TestStreamDestroy(t *testing.T) {
	ctx := NewTestContext(t)
	stream := ctx.CreateStream()

	var ran atomic.Bool
	if err := stream.Submit(func() error {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := stream.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !ran.Load() {
		t.Errorf("Destroy should drain queued work")
	}

	if err := stream.Submit(func() error { return nil }); !errors.Is(err, ErrStreamDestroyed) {
		t.Errorf("Expected ErrStreamDestroyed, got %v", err)
	}
	ptr := MallocOrFail(t, ctx, 64)
	if err := stream.FreeAsync(ptr); !errors.Is(err, ErrStreamDestroyed) {
		t.Errorf("Expected ErrStreamDestroyed from FreeAsync, got %v", err)
	}
	FreeOrFail(t, ctx, ptr)
	if err := stream.Destroy(); err != nil {
		t.Errorf("Second Destroy should be a no-op, got %v", err)
	}
}

func TestContextSynchronize(t *testing.T) {
	ctx := NewTestContext(t)
	s1, s2 := ctx.CreateStream(), ctx.CreateStream()
	if s1.ID() == s2.ID() {
		t.Fatalf("Streams share ID %d", s1.ID())
	}

	var count atomic.Int32
	for _, s := range []*Stream{s1, s2, ctx.DefaultStream()} {
		for i := 0; i < 10; i++ {
			if err := s.Submit(func() error { count.Add(1); return nil }); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
	}
	if err := ctx.Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
	if got := count.Load(); got != 30 {
		t.Errorf("Expected 30 tasks run, got %d", got)
	}
}
