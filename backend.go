package tinyquanta

import "context"

// Backend is the point-get store contract a shard's coroutines call into
// (§4.2, §6 "Persisted state"). The engine treats the backend as an
// external collaborator per spec.md §1 — this repository's own
// implementation, backend.KV, is a reference in-memory stand-in for the
// embedded key-value store the original runs against.
type Backend interface {
	// Get returns the value stored at key, or an error if the lookup
	// failed. A backend error during job execution is fatal per §7
	// ("backend lookup error: abort (assertion)"); Shard.finishJob panics with a
	// *Error carrying ErrCodeBackendError rather than silently degrading,
	// matching the original's assert(s.ok()).
	Get(ctx context.Context, key uint32) (string, error)
	Close() error
}

// Logger is the leveled logging interface every component takes instead
// of a concrete type, mirroring the teacher's Logger usage throughout
// internal/queue and the device lifecycle.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
