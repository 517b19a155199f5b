package gudalt

import (
	"testing"
)

// MallocOrFail allocates device memory and fails the test if unsuccessful
func MallocOrFail(t testing.TB, ctx *Context, size int) DevicePtr {
	t.Helper()
	ptr, err := ctx.Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	return ptr
}

// FreeOrFail releases device memory and fails the test if unsuccessful
func FreeOrFail(t testing.TB, ctx *Context, ptr DevicePtr) {
	t.Helper()
	if err := ctx.Free(ptr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
}

// MemcpyOrFail copies data and fails the test if unsuccessful
func MemcpyOrFail(t testing.TB, ctx *Context, dst, src interface{}, size int, direction MemcpyKind) {
	t.Helper()
	if err := ctx.Memcpy(dst, src, size, direction); err != nil {
		t.Fatalf("Memcpy failed: %v", err)
	}
}

// SynchronizeOrFail synchronizes a stream and fails the test if it reports a fault
func SynchronizeOrFail(t testing.TB, stream *Stream) {
	t.Helper()
	if err := stream.Synchronize(); err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}

// NewTestContext creates a context that is destroyed when the test ends
func NewTestContext(t testing.TB, opts ...ContextOption) *Context {
	t.Helper()
	ctx := NewContext(opts...)
	t.Cleanup(func() {
		if err := ctx.Destroy(); err != nil {
			t.Errorf("Destroy failed: %v", err)
		}
	})
	return ctx
}
