// Package preempt models the original's asynchronous quantum-based
// preemption trap: a compiler-instrumentation callback
// (call_the_yield/empty_handler) invoked every QUANTUM_CYCLE instruction
// counts, registered once per coroutine via register_ci_direct.
//
// Go has no async-signal delivery into an arbitrary goroutine's stack, so
// the trap becomes cooperative: a coroutine body calls Governor.Tick(n)
// after each unit of backend work, and Tick reports whether the body should
// yield now. This is the substitution the spec's own design notes sanction
// for languages with first-class tasks.
package preempt

// Governor is the per-coroutine-slot preemption contract, standing in for
// register_ci_direct's callback registration.
type Governor interface {
	// Tick records n ticks of consumed work and reports whether the
	// caller should yield now.
	Tick(n uint64) (shouldYield bool)
	// Reset clears accumulated ticks, called when a coroutine is handed a
	// fresh job (register_ci_direct is re-armed per dispatch in the
	// original's LAS path).
	Reset()
	// Ticks returns the ticks consumed since the last Reset, for
	// Observer/TIME_STAGE-style reporting.
	Ticks() uint64
}

// QuantumGovernor yields once per Quantum ticks, the call_the_yield /
// non-LAS behavior: every tick beyond the quantum requests a yield.
type QuantumGovernor struct {
	Quantum uint64
	ticks   uint64
}

// NewQuantumGovernor creates a governor with the given quantum (ticks per
// preemption), defaulting to DefaultQuantumCycles-equivalent behavior if
// quantum is 0.
func NewQuantumGovernor(quantum uint64) *QuantumGovernor {
	if quantum == 0 {
		quantum = 1000
	}
	return &QuantumGovernor{Quantum: quantum}
}

func (g *QuantumGovernor) Tick(n uint64) bool {
	g.ticks += n
	return g.ticks >= g.Quantum
}

func (g *QuantumGovernor) Reset()        { g.ticks = 0 }
func (g *QuantumGovernor) Ticks() uint64 { return g.ticks }

// LASGovernor implements the LAS (quantum_idx == num_assigned_quanta)
// variant: the scheduler assigns a quota of quanta for this scheduling
// turn up front, and the governor only requests a yield once that quota
// (not a raw tick count) is exhausted.
type LASGovernor struct {
	Quantum        uint64
	AssignedQuanta uint64
	quantaUsed     uint64
	ticks          uint64
}

// NewLASGovernor creates a governor for one LAS scheduling turn.
func NewLASGovernor(quantum, assignedQuanta uint64) *LASGovernor {
	if quantum == 0 {
		quantum = 1000
	}
	return &LASGovernor{Quantum: quantum, AssignedQuanta: assignedQuanta}
}

func (g *LASGovernor) Tick(n uint64) bool {
	g.ticks += n
	for g.ticks >= g.Quantum {
		g.ticks -= g.Quantum
		g.quantaUsed++
	}
	return g.quantaUsed >= g.AssignedQuanta
}

func (g *LASGovernor) Reset() {
	g.quantaUsed = 0
	g.ticks = 0
}

func (g *LASGovernor) Ticks() uint64 { return g.quantaUsed*g.Quantum + g.ticks }

// EmptyGovernor implements USE_EMPTY_HANDLER: it accumulates ticks (for
// TIME_STAGE-style accounting) but never requests a yield, disabling
// preemption entirely.
type EmptyGovernor struct {
	ticks uint64
}

func NewEmptyGovernor() *EmptyGovernor { return &EmptyGovernor{} }

func (g *EmptyGovernor) Tick(n uint64) bool {
	g.ticks += n
	return false
}

func (g *EmptyGovernor) Reset()        { g.ticks = 0 }
func (g *EmptyGovernor) Ticks() uint64 { return g.ticks }

var (
	_ Governor = (*QuantumGovernor)(nil)
	_ Governor = (*LASGovernor)(nil)
	_ Governor = (*EmptyGovernor)(nil)
)
