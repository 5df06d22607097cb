// Package pin pins the current goroutine's OS thread to a CPU, the Go
// equivalent of the original's one-thread-per-shard model (BASE_CPU plus
// shard index) and directly grounded on the teacher's ioLoop CPU-affinity
// pattern in internal/queue/runner.go.
package pin

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Logger is the minimal logging surface pin needs, avoiding an import
// cycle with internal/logging.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ToCPU locks the calling goroutine to its current OS thread and sets that
// thread's CPU affinity to a single CPU. Caller must ensure it runs this
// once, near the top of a long-lived per-shard goroutine — LockOSThread's
// effect is undone only when the goroutine exits.
//
// A failure to set affinity is logged but not fatal, matching the
// teacher's "continue without affinity" behavior: the engine still runs
// correctly, just without the cache-locality benefit of pinning.
func ToCPU(cpu int, logger Logger) {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Set(cpu)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		if logger != nil {
			logger.Errorf("failed to set CPU affinity to CPU %d: %v", cpu, err)
		}
		return
	}
	if logger != nil {
		logger.Debugf("pinned to CPU %d", cpu)
	}
}

// ForShard computes the CPU a shard should pin to, round-robin over the
// available CPU list starting at baseCPU, mirroring BASE_CPU + shard
// index assignment.
func ForShard(baseCPU, shardID, numCPUs int) int {
	if numCPUs <= 0 {
		numCPUs = runtime.NumCPU()
	}
	return baseCPU + shardID%numCPUs
}

// String renders a CPU assignment for logging.
func String(shardID, cpu int) string {
	return fmt.Sprintf("shard=%d cpu=%d", shardID, cpu)
}
