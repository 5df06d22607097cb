// Package interfaces provides internal interface definitions for tinyquanta.
// These are separate from the public interfaces to avoid circular imports
// between the root package and internal packages.
package interfaces

import "context"

// Backend defines the interface a key-value store must implement to serve
// point-get requests from shard coroutines.
type Backend interface {
	// Get returns the value for a numeric key, or an error if the lookup
	// failed; a key that is not stored is reported as an error (see the
	// Backend doc at the module root for how a shard treats errors).
	Get(ctx context.Context, key uint32) (string, error)
	Close() error
}

// Logger is the logging interface consumed by the dispatcher and shards.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer is the metrics collection interface.
// Implementations must be thread-safe: methods are called concurrently
// from the dispatcher loop and every shard loop.
type Observer interface {
	ObserveDispatch(dropped bool)
	ObserveJob(latencyNs uint64, preempted bool, success bool)
	ObserveReply()
	ObserveBuffersFreed(n uint64)
	ObserveInFlight(count uint32)
}
