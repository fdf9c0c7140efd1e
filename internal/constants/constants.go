package constants

import "time"

// Default scheduler/thread-pool configuration.
const (
	// DefaultMinThreads is the minimum number of I/O threads a Scheduler keeps alive.
	DefaultMinThreads = 1

	// DefaultMaxThreads is the default upper bound on I/O threads when unset.
	DefaultMaxThreads = 4

	// DefaultMaxEventsPerWait is the default initial capacity of a
	// worker's readiness-event buffer.
	DefaultMaxEventsPerWait = 256

	// DefaultMaxTimersPerWait bounds how many timers drain_due() fires per cycle.
	DefaultMaxTimersPerWait = 256

	// DefaultMaxCyclesPerWait bounds wait->dispatch->drain_timers->run_deferred
	// repetitions per poll iteration, preventing livelock from
	// self-rescheduling timers or functors.
	DefaultMaxCyclesPerWait = 16
)

// Default per-socket queue configuration.
const (
	// DefaultWriteQueueLowWatermark is the default send-queue low watermark in bytes.
	DefaultWriteQueueLowWatermark = 0

	// DefaultWriteQueueHighWatermark is the default send-queue high watermark in bytes (1MB).
	DefaultWriteQueueHighWatermark = 1 << 20

	// DefaultReadQueueLowWatermark is the default receive-queue low watermark in bytes.
	DefaultReadQueueLowWatermark = 1

	// DefaultReadQueueHighWatermark is the default receive-queue high watermark in bytes (1MB).
	DefaultReadQueueHighWatermark = 1 << 20

	// DefaultMinIncomingTransfer is the default minimum bytes a Take() call returns.
	DefaultMinIncomingTransfer = 1

	// DefaultMaxIncomingTransfer is the default maximum bytes a Take() call returns.
	DefaultMaxIncomingTransfer = 1 << 20

	// DefaultZeroCopyThreshold is the default send size (bytes) above which the
	// proactor attempts a zero-copy send.
	DefaultZeroCopyThreshold = 16 * 1024

	// DefaultListenBacklog is the default pending-connection backlog for
	// a listening socket when the caller supplies no explicit value.
	DefaultListenBacklog = 128
)

// Batching limits applied when draining the send queue (spec.md §4.2).
const (
	// DefaultMaxBatchBuffers caps iovecs per scatter/gather syscall.
	DefaultMaxBatchBuffers = 16

	// DefaultMaxBatchBytes caps bytes drained into a single syscall.
	DefaultMaxBatchBytes = 4 << 20
)

// Retry/backoff timing used while waiting on OS-level device readiness
// (e.g. a listening socket's backlog, or a local-domain socket path
// appearing on disk after a peer creates it).
const (
	// AttachRetryDelay is the pause between attach-retry attempts.
	AttachRetryDelay = 10 * time.Millisecond

	// AttachRetryTimeout bounds total time spent retrying an attach.
	AttachRetryTimeout = 5 * time.Second
)
