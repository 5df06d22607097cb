package tinyquanta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Zero(t, snap.TotalOps)
	assert.Zero(t, snap.PacketsDispatched)
}

func TestMetricsRecordDispatch(t *testing.T) {
	m := NewMetrics()

	m.RecordDispatch(false)
	m.RecordDispatch(false)
	m.RecordDispatch(true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.PacketsDispatched)
	assert.Equal(t, uint64(1), snap.PacketsDropped)
	assert.InDelta(t, 33.33, snap.DropRate, 0.1)
}

func TestMetricsRecordJob(t *testing.T) {
	m := NewMetrics()

	m.RecordJob(1_000_000, false, true)  // 1ms, completed, success
	m.RecordJob(2_000_000, true, true)   // 2ms, preempted, success
	m.RecordJob(500_000, false, false)   // 0.5ms, completed, backend error

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.JobsCompleted)
	assert.Equal(t, uint64(1), snap.JobsPreempted)
	assert.Equal(t, uint64(1), snap.BackendErrors)
	assert.Equal(t, uint64(3), snap.TotalOps)
}

func TestMetricsInFlightTracking(t *testing.T) {
	m := NewMetrics()

	m.RecordInFlight(4)
	m.RecordInFlight(10)
	m.RecordInFlight(2)

	snap := m.Snapshot()
	assert.Equal(t, uint32(10), snap.MaxInFlight)
	assert.InDelta(t, float64(16)/3, snap.AvgInFlight, 0.01)
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()

	for _, ns := range []uint64{500, 5_000, 50_000, 500_000, 5_000_000} {
		m.RecordJob(ns, false, true)
	}

	snap := m.Snapshot()
	assert.Greater(t, snap.LatencyP99Ns, snap.LatencyP50Ns)
	assert.GreaterOrEqual(t, snap.LatencyP999Ns, snap.LatencyP99Ns)
}

func TestMetricsUptimeAndStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(time.Millisecond)
	m.Stop()

	snap := m.Snapshot()
	assert.Greater(t, snap.UptimeNs, uint64(0))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordDispatch(false)
	m.RecordJob(1_000, false, true)
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.PacketsDispatched)
	assert.Zero(t, snap.TotalOps)
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveDispatch(false)
	obs.ObserveJob(1_000_000, false, true)
	obs.ObserveReply()
	obs.ObserveBuffersFreed(8)
	obs.ObserveInFlight(3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.PacketsDispatched)
	assert.Equal(t, uint64(1), snap.JobsCompleted)
	assert.Equal(t, uint64(1), snap.RepliesSent)
	assert.Equal(t, uint64(8), snap.BuffersFreed)
}

func TestNoOpObserver(t *testing.T) {
	var obs Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		obs.ObserveDispatch(true)
		obs.ObserveJob(1, true, false)
		obs.ObserveReply()
		obs.ObserveBuffersFreed(1)
		obs.ObserveInFlight(1)
	})
}
