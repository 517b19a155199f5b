// Package gudalt configuration constants
package gudalt

// Memory pool parameters
const (
	// Memory alignment for allocations (cache line)
	MemoryAlignment = 64

	// Default device memory budget when no limit is configured
	DefaultMemoryLimit = 16 * 1024 * 1024 * 1024
)

// Thread and block dimensions
const (
	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum threads per block (CUDA compatibility)
	MaxThreadsPerBlock = 1024
)

// Stream parameters
const (
	// Pending tasks a stream buffers before Submit blocks
	StreamQueueDepth = 1024
)

// ContextOption configures a Context created by NewContext.
type ContextOption func(*contextConfig)

type contextConfig struct {
	memoryLimit int64
}

func defaultContextConfig() contextConfig {
	return contextConfig{
		memoryLimit: DefaultMemoryLimit,
	}
}

// WithMemoryLimit caps the bytes the context's pool may hand out at once.
// Allocations beyond the cap fail with ErrOutOfMemory.
func WithMemoryLimit(bytes int64) ContextOption {
	return func(c *contextConfig) {
		if bytes > 0 {
			c.memoryLimit = bytes
		}
	}
}
