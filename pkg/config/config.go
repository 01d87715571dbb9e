// Package config gathers the environment-level constants spec.md leaves to
// the disk manager/deployment: page size, log buffer size, and the flush
// thread's timer. It follows the same convention as logging.Config: a
// plain literal struct with sane defaults rather than a flag/env parser,
// since configuration wiring (CLI, env vars) is explicitly out of scope.
package config

import "time"

// Engine holds the tunables every core component is constructed with.
type Engine struct {
	// PageSize is the fixed size, in bytes, of every page the disk manager
	// reads and writes.
	PageSize int

	// BufferPoolSize is the number of frames the buffer pool manages.
	BufferPoolSize int

	// LogBufferSize is the size, in bytes, of each of the log manager's two
	// buffers (log_buffer and flush_buffer).
	LogBufferSize int

	// LogFlushInterval is LOG_TIMEOUT: how long the background flush
	// goroutine's timer runs before it flushes on its own when no flush has
	// been requested through its wake channel.
	LogFlushInterval time.Duration

	// DirectoryBucketSize is the intended extendible-hash bucket capacity.
	// pool.New does not read it; the buffer pool's page table is always
	// built with a bucket capacity of 4.
	DirectoryBucketSize int
}

// Default returns the engine configuration used when the caller does not
// need to override any tunable.
func Default() Engine {
	return Engine{
		PageSize:            4096,
		BufferPoolSize:      64,
		LogBufferSize:       (128 + 1) * 4096,
		LogFlushInterval:    100 * time.Millisecond,
		DirectoryBucketSize: 4,
	}
}
