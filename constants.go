package ntf

import "github.com/vireo-io/ntf/internal/constants"

// Re-exported defaults for the public Config/SocketOptions API.
const (
	DefaultMinThreads              = constants.DefaultMinThreads
	DefaultMaxThreads              = constants.DefaultMaxThreads
	DefaultMaxEventsPerWait        = constants.DefaultMaxEventsPerWait
	DefaultMaxTimersPerWait        = constants.DefaultMaxTimersPerWait
	DefaultMaxCyclesPerWait        = constants.DefaultMaxCyclesPerWait
	DefaultWriteQueueLowWatermark  = constants.DefaultWriteQueueLowWatermark
	DefaultWriteQueueHighWatermark = constants.DefaultWriteQueueHighWatermark
	DefaultReadQueueLowWatermark   = constants.DefaultReadQueueLowWatermark
	DefaultReadQueueHighWatermark  = constants.DefaultReadQueueHighWatermark
	DefaultMinIncomingTransfer     = constants.DefaultMinIncomingTransfer
	DefaultMaxIncomingTransfer     = constants.DefaultMaxIncomingTransfer
	DefaultZeroCopyThreshold       = constants.DefaultZeroCopyThreshold
	DefaultListenBacklog           = constants.DefaultListenBacklog
)
