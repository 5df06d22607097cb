package tinyquanta

import (
	"sync/atomic"
	"time"
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

// Metrics tracks dispatch and scheduling statistics for the engine.
type Metrics struct {
	// Dispatch-side counters
	PacketsDispatched atomic.Uint64 // Packets steered to a shard
	PacketsDropped    atomic.Uint64 // Packets dropped because the shard's dispatch ring was full
	BuffersFreed      atomic.Uint64 // RX buffers bulk-freed by the dispatcher

	// Scheduling-side counters
	JobsCompleted   atomic.Uint64 // Coroutine runs that reached completion
	JobsPreempted   atomic.Uint64 // Coroutine runs that yielded on quantum expiry
	BackendErrors   atomic.Uint64 // Backend Get() failures
	RepliesSent     atomic.Uint64 // Replies handed to the NIC substrate

	// Per-shard load tracking
	InFlightTotal atomic.Uint64 // Cumulative in-flight samples (for averaging)
	InFlightCount atomic.Uint64 // Number of in-flight samples
	MaxInFlight   atomic.Uint32 // Maximum observed in-flight jobs on any shard

	// Performance tracking
	TotalLatencyNs atomic.Uint64 // Cumulative job latency in nanoseconds
	OpCount        atomic.Uint64 // Total recorded runs, completed or preempted (for average latency)

	// Latency histogram buckets (cumulative counts).
	// Each bucket[i] contains the count of jobs with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Engine lifecycle
	StartTime atomic.Int64 // Engine start timestamp (UnixNano)
	StopTime  atomic.Int64 // Engine stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatch records a packet being steered to a shard.
func (m *Metrics) RecordDispatch(dropped bool) {
	if dropped {
		m.PacketsDropped.Add(1)
		return
	}
	m.PacketsDispatched.Add(1)
}

// RecordJob records a completed or preempted coroutine run.
func (m *Metrics) RecordJob(latencyNs uint64, preempted bool, success bool) {
	if preempted {
		m.JobsPreempted.Add(1)
	} else {
		m.JobsCompleted.Add(1)
	}
	if !success {
		m.BackendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReply records a reply handed off to the NIC substrate.
func (m *Metrics) RecordReply() {
	m.RepliesSent.Add(1)
}

// RecordBuffersFreed records a bulk-free of RX buffers by the dispatcher.
func (m *Metrics) RecordBuffersFreed(n uint64) {
	m.BuffersFreed.Add(n)
}

// RecordInFlight records a shard's current in-flight job count.
func (m *Metrics) RecordInFlight(count uint32) {
	m.InFlightTotal.Add(uint64(count))
	m.InFlightCount.Add(1)

	for {
		current := m.MaxInFlight.Load()
		if count <= current {
			break
		}
		if m.MaxInFlight.CompareAndSwap(current, count) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	PacketsDispatched uint64
	PacketsDropped    uint64
	BuffersFreed      uint64

	JobsCompleted uint64
	JobsPreempted uint64
	BackendErrors uint64
	RepliesSent   uint64

	AvgInFlight float64
	MaxInFlight uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	DispatchRate float64 // packets dispatched per second
	DropRate     float64 // percentage of packets dropped
	TotalOps     uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		PacketsDispatched: m.PacketsDispatched.Load(),
		PacketsDropped:    m.PacketsDropped.Load(),
		BuffersFreed:      m.BuffersFreed.Load(),
		JobsCompleted:     m.JobsCompleted.Load(),
		JobsPreempted:     m.JobsPreempted.Load(),
		BackendErrors:     m.BackendErrors.Load(),
		RepliesSent:       m.RepliesSent.Load(),
		MaxInFlight:       m.MaxInFlight.Load(),
	}

	snap.TotalOps = snap.JobsCompleted + snap.JobsPreempted

	inFlightTotal := m.InFlightTotal.Load()
	inFlightCount := m.InFlightCount.Load()
	if inFlightCount > 0 {
		snap.AvgInFlight = float64(inFlightTotal) / float64(inFlightCount)
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
		snap.DispatchRate = float64(snap.PacketsDispatched) / uptimeSeconds
	}

	totalPackets := snap.PacketsDispatched + snap.PacketsDropped
	if totalPackets > 0 {
		snap.DropRate = float64(snap.PacketsDropped) / float64(totalPackets) * 100.0
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
	m.PacketsDispatched.Store(0)
	m.PacketsDropped.Store(0)
	m.BuffersFreed.Store(0)
	m.JobsCompleted.Store(0)
	m.JobsPreempted.Store(0)
	m.BackendErrors.Store(0)
	m.RepliesSent.Store(0)
	m.InFlightTotal.Store(0)
	m.InFlightCount.Store(0)
	m.MaxInFlight.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection across the dispatcher and
// shards.
type Observer interface {
	// ObserveDispatch is called for each packet the dispatcher steers
	// (or drops) to a shard.
	ObserveDispatch(dropped bool)

	// ObserveJob is called for each coroutine run that completes or
	// yields on quantum expiry.
	ObserveJob(latencyNs uint64, preempted bool, success bool)

	// ObserveReply is called for each reply handed off to the NIC substrate.
	ObserveReply()

	// ObserveBuffersFreed is called when the dispatcher bulk-frees RX buffers.
	ObserveBuffersFreed(n uint64)

	// ObserveInFlight is called periodically with a shard's in-flight count.
	ObserveInFlight(count uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDispatch(bool)             {}
func (NoOpObserver) ObserveJob(uint64, bool, bool)    {}
func (NoOpObserver) ObserveReply()                    {}
func (NoOpObserver) ObserveBuffersFreed(uint64)        {}
func (NoOpObserver) ObserveInFlight(uint32)            {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDispatch(dropped bool) {
	o.metrics.RecordDispatch(dropped)
}

func (o *MetricsObserver) ObserveJob(latencyNs uint64, preempted bool, success bool) {
	o.metrics.RecordJob(latencyNs, preempted, success)
}

func (o *MetricsObserver) ObserveReply() {
	o.metrics.RecordReply()
}

func (o *MetricsObserver) ObserveBuffersFreed(n uint64) {
	o.metrics.RecordBuffersFreed(n)
}

func (o *MetricsObserver) ObserveInFlight(count uint32) {
	o.metrics.RecordInFlight(count)
}

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
