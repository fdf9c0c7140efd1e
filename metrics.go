package ntf

import (
	"sync/atomic"
	"time"

	"github.com/vireo-io/ntf/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a scheduler
// and the sessions it drives.
type Metrics struct {
	// Send/receive operation counters
	SendOps atomic.Uint64 // Total send syscalls issued
	RecvOps atomic.Uint64 // Total recv syscalls issued

	// Byte counters
	SendBytes atomic.Uint64 // Total bytes written
	RecvBytes atomic.Uint64 // Total bytes read

	// Error counters
	SendErrors atomic.Uint64 // Send operation errors
	RecvErrors atomic.Uint64 // Recv operation errors

	// Watermark events
	SendHighWaterHits atomic.Uint64 // Times a send queue crossed its high watermark
	SendLowWaterHits  atomic.Uint64 // Times a send queue relaxed to its low watermark
	RecvHighWaterHits atomic.Uint64 // Times a receive queue crossed its high watermark
	RecvLowWaterHits  atomic.Uint64 // Times a receive queue relaxed to its low watermark

	// Queue statistics
	QueueDepthTotal atomic.Uint64 // Cumulative queue depth samples (bytes)
	QueueDepthCount atomic.Uint64 // Number of queue depth measurements
	MaxQueueDepth   atomic.Uint64 // Maximum observed queue depth (bytes)

	// Timer drift tracking: how far a fired timer's actual wakeup lagged
	// its scheduled deadline.
	TotalTimerDriftNs atomic.Int64
	TimerSampleCount  atomic.Uint64
	MaxTimerDriftNs   atomic.Int64

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative operation latency in nanoseconds
	OpCount        atomic.Uint64 // Total operations (for average latency calculation)

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of operations with latency <= LatencyBuckets[i]
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Scheduler lifecycle
	StartTime atomic.Int64 // Scheduler start timestamp (UnixNano)
	StopTime  atomic.Int64 // Scheduler stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records a send operation.
func (m *Metrics) RecordSend(bytes uint64, latencyNs uint64, success bool) {
	m.SendOps.Add(1)
	if success {
		m.SendBytes.Add(bytes)
	} else {
		m.SendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReceive records a receive operation.
func (m *Metrics) RecordReceive(bytes uint64, latencyNs uint64, success bool) {
	m.RecvOps.Add(1)
	if success {
		m.RecvBytes.Add(bytes)
	} else {
		m.RecvErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWatermark records a send/receive queue crossing a watermark.
// kind is one of "send" or "recv"; armed is true for a high-watermark
// crossing, false for a low-watermark relaxation.
func (m *Metrics) RecordWatermark(kind string, armed bool) {
	switch {
	case kind == "send" && armed:
		m.SendHighWaterHits.Add(1)
	case kind == "send" && !armed:
		m.SendLowWaterHits.Add(1)
	case kind == "recv" && armed:
		m.RecvHighWaterHits.Add(1)
	case kind == "recv" && !armed:
		m.RecvLowWaterHits.Add(1)
	}
}

// RecordTimerDrift records how far a fired timer lagged its deadline.
func (m *Metrics) RecordTimerDrift(driftNs int64) {
	m.TotalTimerDriftNs.Add(driftNs)
	m.TimerSampleCount.Add(1)
	for {
		current := m.MaxTimerDriftNs.Load()
		if driftNs <= current {
			break
		}
		if m.MaxTimerDriftNs.CompareAndSwap(current, driftNs) {
			break
		}
	}
}

// RecordQueueDepth records current queue depth (in bytes) for statistics.
func (m *Metrics) RecordQueueDepth(bytes uint64) {
	m.QueueDepthTotal.Add(bytes)
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if bytes <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, bytes) {
			break
		}
	}
}

// recordLatency records operation latency and updates histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the scheduler as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	// Operations
	SendOps uint64
	RecvOps uint64

	// Bytes transferred
	SendBytes uint64
	RecvBytes uint64

	// Error counts
	SendErrors uint64
	RecvErrors uint64

	// Watermark events
	SendHighWaterHits uint64
	SendLowWaterHits  uint64
	RecvHighWaterHits uint64
	RecvLowWaterHits  uint64

	// Queue statistics
	AvgQueueDepth float64
	MaxQueueDepth uint64

	// Timer drift
	AvgTimerDriftNs float64
	MaxTimerDriftNs int64

	// Performance
	AvgLatencyNs uint64
	UptimeNs     uint64

	// Latency percentiles (in nanoseconds)
	LatencyP50Ns  uint64 // 50th percentile (median)
	LatencyP99Ns  uint64 // 99th percentile
	LatencyP999Ns uint64 // 99.9th percentile

	// Histogram bucket counts (cumulative)
	LatencyHistogram [numLatencyBuckets]uint64

	// Computed statistics
	SendIOPS       float64 // Operations per second
	RecvIOPS       float64
	SendBandwidth  float64 // Bytes per second
	RecvBandwidth  float64
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64 // Percentage of failed operations
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SendOps:           m.SendOps.Load(),
		RecvOps:           m.RecvOps.Load(),
		SendBytes:         m.SendBytes.Load(),
		RecvBytes:         m.RecvBytes.Load(),
		SendErrors:        m.SendErrors.Load(),
		RecvErrors:        m.RecvErrors.Load(),
		SendHighWaterHits: m.SendHighWaterHits.Load(),
		SendLowWaterHits:  m.SendLowWaterHits.Load(),
		RecvHighWaterHits: m.RecvHighWaterHits.Load(),
		RecvLowWaterHits:  m.RecvLowWaterHits.Load(),
		MaxQueueDepth:     m.MaxQueueDepth.Load(),
		MaxTimerDriftNs:   m.MaxTimerDriftNs.Load(),
	}

	snap.TotalOps = snap.SendOps + snap.RecvOps
	snap.TotalBytes = snap.SendBytes + snap.RecvBytes

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalDrift := m.TotalTimerDriftNs.Load()
	driftSamples := m.TimerSampleCount.Load()
	if driftSamples > 0 {
		snap.AvgTimerDriftNs = float64(totalDrift) / float64(driftSamples)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.SendIOPS = float64(snap.SendOps) / uptimeSeconds
		snap.RecvIOPS = float64(snap.RecvOps) / uptimeSeconds
		snap.SendBandwidth = float64(snap.SendBytes) / uptimeSeconds
		snap.RecvBandwidth = float64(snap.RecvBytes) / uptimeSeconds
	}

	totalErrors := snap.SendErrors + snap.RecvErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.SendOps.Store(0)
	m.RecvOps.Store(0)
	m.SendBytes.Store(0)
	m.RecvBytes.Store(0)
	m.SendErrors.Store(0)
	m.RecvErrors.Store(0)
	m.SendHighWaterHits.Store(0)
	m.SendLowWaterHits.Store(0)
	m.RecvHighWaterHits.Store(0)
	m.RecvLowWaterHits.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalTimerDriftNs.Store(0)
	m.TimerSampleCount.Store(0)
	m.MaxTimerDriftNs.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements interfaces.Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSend(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordSend(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveReceive(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordReceive(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWatermark(kind string, armed bool) {
	o.metrics.RecordWatermark(kind, armed)
}

func (o *MetricsObserver) ObserveTimerDrift(driftNs int64) {
	o.metrics.RecordTimerDrift(driftNs)
}

func (o *MetricsObserver) ObserveQueueDepth(bytes uint64) {
	o.metrics.RecordQueueDepth(bytes)
}

// Compile-time interface check
var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = (*NoOpObserver)(nil)

// NoOpObserver is a no-op implementation of interfaces.Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(uint64, uint64, bool)     {}
func (NoOpObserver) ObserveReceive(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWatermark(string, bool)        {}
func (NoOpObserver) ObserveTimerDrift(int64)              {}
func (NoOpObserver) ObserveQueueDepth(uint64)             {}
