package gudalt

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/rs/zerolog/log"
)

// MemcpyKind specifies the direction of memory transfer.
// In GUDA's unified memory model, these are provided for CUDA compatibility
// but may be treated identically since all memory is CPU-accessible.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

// MemoryPool manages device memory allocation with efficient reuse.
// It maintains a free list of previously allocated blocks to reduce
// allocation overhead and memory fragmentation.
type MemoryPool struct {
	mu         sync.Mutex
	allocated  map[uintptr]*allocation
	freeList   []*allocation
	limit      int64
	totalAlloc int64
	peakAlloc  int64
	live       int
}

type allocation struct {
	buf  []byte
	size int
	used bool
}

// MemoryStats is a snapshot of pool usage.
type MemoryStats struct {
	InUse int64 // Bytes handed out and not yet freed
	Peak  int64 // High-water mark of InUse
	Live  int   // Number of outstanding allocations
}

// NewMemoryPool creates a memory pool that refuses to hand out more than
// limit bytes at once.
func NewMemoryPool(limit int64) *MemoryPool {
	return &MemoryPool{
		allocated: make(map[uintptr]*allocation),
		limit:     limit,
	}
}

// Malloc allocates device memory of the specified size in bytes.
// The memory is aligned for optimal SIMD performance.
//
// Example:
//
//	ptr, err := ctx.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//	    return err
//	}
//	defer ctx.Free(ptr)
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	return ctx.memory.Allocate(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero DevicePtr.
// The memory may be retained in the pool for future allocations.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.memory.Free(ptr)
}

// Memcpy copies memory between host and device.
// Supports DevicePtr and Go slices of the element types used by GEMM operands.
//
// Parameters:
//   - dst: Destination (DevicePtr or Go slice)
//   - src: Source (DevicePtr or Go slice)
//   - size: Number of bytes to copy
//   - kind: Transfer direction (for CUDA compatibility)
func (ctx *Context) Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	if size < 0 {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("negative size %d", size))
	}

	dstBytes, err := bytesOf(dst)
	if err != nil {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported dst type: %T", dst))
	}
	srcBytes, err := bytesOf(src)
	if err != nil {
		return NewInvalidArgError("Memcpy", fmt.Sprintf("unsupported src type: %T", src))
	}

	if size > len(dstBytes) || size > len(srcBytes) {
		return NewInvalidArgError("Memcpy",
			fmt.Sprintf("copy of %d bytes exceeds buffer (dst %d, src %d)", size, len(dstBytes), len(srcBytes)))
	}

	copy(dstBytes[:size], srcBytes[:size])
	return nil
}

func bytesOf(v interface{}) ([]byte, error) {
	switch d := v.(type) {
	case DevicePtr:
		return d.Byte(), nil
	case []byte:
		return d, nil
	case []float32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*4), nil
	case []float64:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*8), nil
	case []int32:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*4), nil
	case []uint16:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*2), nil
	case []Float16:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*2), nil
	case []BFloat16:
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(d))), len(d)*2), nil
	default:
		return nil, ErrNullPointer
	}
}

// MemoryPool methods

// Allocate allocates memory from the pool
func (mp *MemoryPool) Allocate(size int) (DevicePtr, error) {
	if size <= 0 {
		return DevicePtr{}, ErrInvalidSize
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	// Best fit from the free list. A reused block is charged at its full
	// size, so one that would overshoot the limit is passed over.
	best := -1
	for i, alloc := range mp.freeList {
		if alloc.size < alignedSize || mp.totalAlloc+int64(alloc.size) > mp.limit {
			continue
		}
		if best < 0 || alloc.size < mp.freeList[best].size {
			best = i
		}
	}

	var alloc *allocation
	if best >= 0 {
		alloc = mp.freeList[best]
		mp.freeList = append(mp.freeList[:best], mp.freeList[best+1:]...)
	} else {
		if mp.totalAlloc+int64(alignedSize) > mp.limit {
			mallocFailures.Inc()
			return DevicePtr{}, NewMemoryError("Malloc",
				fmt.Sprintf("cannot allocate %d bytes: %d of %d in use", size, mp.totalAlloc, mp.limit),
				ErrOutOfMemory)
		}
		alloc = &allocation{
			buf:  make([]byte, alignedSize),
			size: alignedSize,
		}
		mp.allocated[uintptr(unsafe.Pointer(&alloc.buf[0]))] = alloc
	}
	alloc.used = true

	mp.totalAlloc += int64(alloc.size)
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
	mp.live++
	deviceMemoryBytes.Add(float64(alloc.size))
	deviceAllocations.Inc()

	return DevicePtr{
		ptr:  unsafe.Pointer(&alloc.buf[0]),
		size: size,
	}, nil
}

// Free returns memory to the pool
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.ptr == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.ptr)]
	if !ok || ptr.offset != 0 {
		return NewMemoryError("Free", "pointer not found in allocation pool", nil)
	}

	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(alloc.size)
	mp.live--
	deviceMemoryBytes.Sub(float64(alloc.size))
	deviceAllocations.Dec()

	log.Trace().Int("bytes", alloc.size).Msg("device memory freed")
	return nil
}

// Stats returns memory pool statistics
func (mp *MemoryPool) Stats() MemoryStats {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return MemoryStats{
		InUse: mp.totalAlloc,
		Peak:  mp.peakAlloc,
		Live:  mp.live,
	}
}

// DevicePtr methods for convenience

// IsNil reports whether d is the null device pointer.
func (d DevicePtr) IsNil() bool {
	return d.ptr == nil
}

// Float32 returns a float32 slice view of the device memory.
// The slice can be used directly for reading and writing data.
//
// Example:
//
//	d_data, _ := ctx.Malloc(1024 * 4) // Allocate for 1024 float32s
//	data := d_data.Float32()
//	data[0] = 3.14 // Direct access
func (d DevicePtr) Float32() []float32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float32)(d.ptr), d.size/4)
}

// Byte returns a byte slice view of the device memory.
// The slice covers the entire allocated memory region.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.ptr), d.size)
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// Useful for accessing sub-regions of allocated memory.
// The returned DevicePtr shares the same underlying memory.
func (d DevicePtr) Offset(bytes int) DevicePtr {
	if d.ptr == nil || bytes < 0 || bytes > d.size {
		return DevicePtr{}
	}
	return DevicePtr{
		ptr:    unsafe.Add(d.ptr, bytes),
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}
