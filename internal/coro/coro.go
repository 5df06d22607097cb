// Package coro models a coroutine slot: a cooperative unit of execution
// that suspends mid-job when the preemption governor says to, and resumes
// later from exactly where it left off — the Go substitute for the
// original's boost::coroutines2::coroutine<void*> pull/push pair (coro()),
// each slot backed by a private stack.
//
// A goroutine plus a pair of unbuffered handoff channels plays the same
// role: Dispatch()/Continue() are the pull-type's operator(), and the body's
// call to yield() is the coroutine's yield(&yield) — the goroutine genuinely
// blocks there, so the next Continue() resumes exactly after that call,
// just as boost::coroutines2 resumes after yield() on the private stack.
// The per-slot state (idle vs running) mirrors the TagState pattern in the
// teacher's internal/queue/runner.go.
package coro

import (
	"context"
	"sync"
)

// State mirrors the teacher's TagState enum, applied to a coroutine slot
// instead of an io_uring tag.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSuspended
)

// Job is one unit of work handed to a slot: a point-get against a backend
// for the given key, identified by the packet id it is answering. Work is
// the number of preemption-governor ticks the body should simulate before
// making its single real backend call — 0 behaves as 1 (a fast point-get
// that essentially never hits the quantum), letting tests model a slow
// backend by setting it to a multiple of the quantum (§8 "E5 — quantum
// preemption").
type Job struct {
	PacketID uint32
	Key      uint32
	Work     uint64
}

// Result is what a finished job reports back.
type Result struct {
	Value string
	Err   error
}

// Body is the function a coroutine slot runs once per Job, returning the
// job's Result only once it has actually finished. It must call yield
// periodically (the preemption governor decides how often) and must not
// retain ctx/job past its own return.
type Body func(ctx context.Context, job Job, yield func()) Result

// Slot is one coroutine slot: one goroutine, parked at a yield point
// between Dispatch/Continue calls.
type Slot struct {
	id   int
	body Body

	mu    sync.Mutex
	state State

	dispatchCh chan Job         // scheduler -> goroutine: start a fresh job
	continueCh chan struct{}    // scheduler -> goroutine: resume after a yield
	yieldedCh  chan struct{}    // goroutine -> scheduler: body reached a yield point
	doneCh     chan Result      // goroutine -> scheduler: body finished the job

	closeOnce sync.Once
	stop      chan struct{}
}

// NewSlot starts the slot's goroutine, which immediately parks waiting for
// its first job.
func NewSlot(id int, body Body) *Slot {
	s := &Slot{
		id:         id,
		body:       body,
		dispatchCh: make(chan Job),
		continueCh: make(chan struct{}),
		yieldedCh:  make(chan struct{}),
		doneCh:     make(chan Result),
		stop:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Slot) run() {
	ctx := context.Background()
	for {
		select {
		case job, ok := <-s.dispatchCh:
			if !ok {
				return
			}
			yield := func() {
				s.yieldedCh <- struct{}{}
				<-s.continueCh
			}
			res := s.body(ctx, job, yield)
			s.doneCh <- res
		case <-s.stop:
			return
		}
	}
}

// State returns the slot's current state.
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch starts a new job on an idle slot and runs it until the first
// yield or completion. Returns (zero Result, true) if the body yielded
// (call Continue to resume it later); returns (Result, false) once the
// job has fully completed.
func (s *Slot) Dispatch(job Job) (Result, bool) {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.dispatchCh <- job
	return s.awaitStep()
}

// Continue resumes a suspended slot from its last yield point, running
// until the next yield or completion.
func (s *Slot) Continue() (Result, bool) {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.continueCh <- struct{}{}
	return s.awaitStep()
}

func (s *Slot) awaitStep() (Result, bool) {
	select {
	case <-s.yieldedCh:
		s.mu.Lock()
		s.state = StateSuspended
		s.mu.Unlock()
		return Result{}, true
	case res := <-s.doneCh:
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return res, false
	}
}

// Close stops the slot's goroutine. Safe to call multiple times. Must only
// be called when the slot is idle (no job in flight).
func (s *Slot) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// ID returns the slot's index within its shard (0..NumCorosPerShard-1).
func (s *Slot) ID() int { return s.id }
