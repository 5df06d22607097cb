// Package unit exercises small, isolated pieces of the dispatch/scheduling
// engine that don't need a full dispatcher wired up: wire framing,
// run-queue disciplines, the SPSC ring, and the buffer pool's sizing
// invariants.
package unit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhluo94/tinyquanta"
	"github.com/zhluo94/tinyquanta/internal/bufpool"
	"github.com/zhluo94/tinyquanta/internal/nic"
	"github.com/zhluo94/tinyquanta/internal/preempt"
	"github.com/zhluo94/tinyquanta/internal/ring"
	"github.com/zhluo94/tinyquanta/internal/sched"
)

func TestBackendInterfaceCompliance(t *testing.T) {
	var _ tinyquanta.Backend = tinyquanta.NewMockBackend(1)
}

func TestMockBackendPreSeedsFixedValue(t *testing.T) {
	backend := tinyquanta.NewMockBackend(4)
	for key := uint32(0); key < 4; key++ {
		v, err := backend.Get(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
	}
}

func TestMockBackendFailNextGet(t *testing.T) {
	backend := tinyquanta.NewMockBackend(1)
	backend.FailNextGet(assert.AnError)

	_, err := backend.Get(context.Background(), 0)
	assert.ErrorIs(t, err, assert.AnError)

	// the failure is one-shot: the next call should succeed normally
	v, err := backend.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestMockBackendGetCallsCounter(t *testing.T) {
	backend := tinyquanta.NewMockBackend(1)
	_, _ = backend.Get(context.Background(), 0)
	_, _ = backend.Get(context.Background(), 0)
	assert.Equal(t, 2, backend.GetCalls())
}

func TestRingPushPopFIFOOrder(t *testing.T) {
	r := ring.New[int](4)
	one, two := 1, 2
	require.NoError(t, r.Push(&one))
	require.NoError(t, r.Push(&two))

	v, err := r.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, *v)

	v, err = r.Pop()
	require.NoError(t, err)
	assert.Equal(t, 2, *v)
}

func TestRingFullReturnsErrFull(t *testing.T) {
	r := ring.New[int](2)
	a, b, c := 1, 2, 3
	require.NoError(t, r.Push(&a))
	require.NoError(t, r.Push(&b))
	assert.ErrorIs(t, r.Push(&c), ring.ErrFull)
}

func TestRingEmptyReturnsErrEmpty(t *testing.T) {
	r := ring.New[int](2)
	_, err := r.Pop()
	assert.ErrorIs(t, err, ring.ErrEmpty)
}

func TestRingPanicsOnNonPowerOfTwoCapacity(t *testing.T) {
	assert.Panics(t, func() { ring.New[int](3) })
}

func TestFIFORunQueueRequeuesAtBack(t *testing.T) {
	q := sched.New(sched.FIFO)
	a := &sched.Entry{SlotID: 1}
	b := &sched.Entry{SlotID: 2}
	q.Push(a)
	q.Push(b)

	first := q.Next()
	assert.Equal(t, 1, first.SlotID)
	q.Requeue(first)

	second := q.Next()
	assert.Equal(t, 2, second.SlotID, "b should run before the requeued a")
}

func TestLIFOLoopRequeuesAtFront(t *testing.T) {
	q := sched.New(sched.LIFOLoop)
	a := &sched.Entry{SlotID: 1}
	b := &sched.Entry{SlotID: 2}
	q.Push(a)
	q.Push(b)

	first := q.Next()
	assert.Equal(t, 1, first.SlotID)
	q.Requeue(first)

	second := q.Next()
	assert.Equal(t, 1, second.SlotID, "a should run again before b under LIFO-loop")
}

func TestLASRunQueueOrdersByQuanta(t *testing.T) {
	q := sched.New(sched.LAS)
	a := &sched.Entry{SlotID: 1, NumQuanta: 5}
	b := &sched.Entry{SlotID: 2, NumQuanta: 1}
	q.Push(a)
	q.Push(b)

	next := q.Next()
	assert.Equal(t, 2, next.SlotID, "lowest NumQuanta should be selected first")
}

func TestQuantumGovernorYieldsAtQuantum(t *testing.T) {
	g := preempt.NewQuantumGovernor(10)
	assert.False(t, g.Tick(5))
	assert.True(t, g.Tick(5))
}

func TestLASGovernorYieldsOnAssignedQuanta(t *testing.T) {
	g := preempt.NewLASGovernor(10, 2)
	assert.False(t, g.Tick(10)) // first quantum consumed, one more assigned
	assert.True(t, g.Tick(10)) // second quantum consumed, budget exhausted
}

func TestEmptyGovernorNeverYields(t *testing.T) {
	g := preempt.NewEmptyGovernor()
	assert.False(t, g.Tick(1_000_000))
}

func TestBufpoolAllocExhaustion(t *testing.T) {
	p := bufpool.New("test", 2, 0)
	b1 := p.Alloc()
	b2 := p.Alloc()
	require.NotNil(t, b1)
	require.NotNil(t, b2)
	assert.Nil(t, p.Alloc())
}

func TestBufpoolFreeReplenishes(t *testing.T) {
	p := bufpool.New("test", 1, 0)
	b := p.Alloc()
	require.NotNil(t, b)
	assert.Nil(t, p.Alloc())

	p.Free(b)
	assert.NotNil(t, p.Alloc())
}

func TestStubRingInjectAndSend(t *testing.T) {
	rxPool := bufpool.New("rx", 8, 0)
	txPool := bufpool.New("tx", 8, 0)
	s := nic.NewStubRing(rxPool, txPool)

	s.Inject([]byte{1, 2, 3, 4}, nil)
	pkts, err := s.RecvBurst(4)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, pkts[0].Payload())

	n, err := s.SendBurst(pkts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, s.Sent(), 1)
}

func TestWireHeaderRoundTrip(t *testing.T) {
	hdr := tinyquanta.RequestHeader{ID: 1, ReqType: tinyquanta.ReqTypePointGet, ReqSize: 42, RunNs: 7}
	buf := make([]byte, tinyquanta.HeaderSize)
	tinyquanta.BuildReply(buf, hdr)

	reply, err := tinyquanta.ParseRequestHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, hdr.ID, reply.ID)
	assert.Equal(t, hdr.ReqType, reply.ReqType)
	assert.Equal(t, hdr.ReqSize, reply.ReqSize)
	assert.Equal(t, uint32(0), reply.RunNs, "run_ns must be zeroed on reply")
}
