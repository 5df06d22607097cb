// Package constants holds the fixed sizing and timing knobs of the
// dispatch/scheduling engine, mirroring the #define constants of the
// original single-file implementation.
package constants

import "time"

const (
	// NumShards is the default number of per-shard schedulers, one per
	// worker thread in the original (NUM_WORKER_THREADS).
	NumShards = 16

	// NumCorosPerShard is the number of coroutine slots each shard runs
	// concurrently (NUM_WORKER_COROS).
	NumCorosPerShard = 4

	// DispatchRingSize is the capacity of the dispatcher->shard SPSC ring.
	DispatchRingSize = 256
	// DispatchRingBurstSize is the max packets a shard dequeues from its
	// dispatch ring per intake.
	DispatchRingBurstSize = 4
	// DispatchDequeuePeriod is how many quanta a shard runs between
	// unforced dispatch intakes; it also caps an LAS turn's quantum budget.
	DispatchDequeuePeriod = 8

	// ReturnRingSize is the capacity of the shard->dispatcher return ring.
	ReturnRingSize = 512
	// ReturnRingBurstSize is the max buffers a shard returns per visit.
	ReturnRingBurstSize = 8
	// ReturnRingCheckinPeriod is how many return-ring entries accumulate
	// system-wide before the dispatcher bulk-frees them.
	ReturnRingCheckinPeriod = ReturnRingBurstSize * NumShards * 2

	// RXQueueBurstSize is the max packets read from the NIC substrate per
	// dispatcher poll.
	RXQueueBurstSize = 32
	// TXQueueBurstSize is the max packets written to the NIC substrate per
	// shard TX flush.
	TXQueueBurstSize = 4

	// RXPoolSize / RXPoolCacheSize size the RX buffer pool (P_rx / C_rx).
	RXPoolSize      = 32767
	RXPoolCacheSize = 250
	// TXPoolSize / TXPoolCacheSize size the TX buffer pool (P_tx / C_tx).
	TXPoolSize      = 8191
	TXPoolCacheSize = 250

	// MaxRunningJobsPerShardToCheckin is the per-shard share of the
	// reconcile trigger: the dispatcher reconciles once total in-flight jobs
	// across all shards reach the shard count times this value.
	MaxRunningJobsPerShardToCheckin = 128
	MaxRunningJobsToCheckin         = NumShards * MaxRunningJobsPerShardToCheckin

	// MaxRXBufPerShard / MaxTXBufPerShard are the per-shard buffer-holding
	// bounds (§4.4). No startup check compares the pool sizes against them.
	MaxRXBufPerShard = DispatchRingSize + NumCorosPerShard + ReturnRingBurstSize
	MaxTXBufPerShard = NumCorosPerShard + TXQueueBurstSize

	// CoroStackSize is the original's per-coroutine stack size
	// (STACK_SIZE). Coroutine slots here run on goroutine stacks, which the
	// Go runtime sizes itself; this value is not applied to them.
	CoroStackSize = 128 * 1024
	// HugePageSize is the original's STACKS_FROM_HUGEPAGE mapping size.
	// There is no huge-page stack arena in this repository.
	HugePageSize = 1 << 30

	// DefaultQuantumCycles is the default preemption quantum, expressed as
	// an abstract tick count rather than a TSC cycle count (QUANTUM_CYCLE).
	DefaultQuantumCycles = 1000

	// DefaultBaseCPU is the first CPU a shard is pinned to (BASE_CPU).
	DefaultBaseCPU = 0

	// ServerUDPPort is the fixed UDP port the dispatcher listens on (§6).
	ServerUDPPort = 8001
)

// Timing constants for the reference NIC substrate and startup sequencing.
const (
	// SocketReadTimeout bounds how long a single Recvmmsg call blocks when
	// no packets are pending, so the dispatcher loop can still service
	// reconcile/bulk-free work on an idle socket.
	SocketReadTimeout = 10 * time.Millisecond

	// ShutdownDrainTimeout bounds how long Stop() waits for in-flight
	// coroutines to finish before forcing shard teardown.
	ShutdownDrainTimeout = 2 * time.Second
)
