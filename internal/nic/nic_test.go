package nic

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhluo94/tinyquanta/internal/bufpool"
)

func newStubRing() (*StubRing, *bufpool.Pool, *bufpool.Pool) {
	rxPool := bufpool.New("rx", 64, 8)
	txPool := bufpool.New("tx", 64, 8)
	return NewStubRing(rxPool, txPool), rxPool, txPool
}

func TestStubRingInjectAndRecv(t *testing.T) {
	ring, _, _ := newStubRing()
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	ring.Inject([]byte("hello"), addr)

	pkts, err := ring.RecvBurst(8)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, "hello", string(pkts[0].Payload()))
	assert.Equal(t, addr, pkts[0].Addr)
	assert.Equal(t, defaultL2Len, pkts[0].L2Len)
	assert.Equal(t, defaultL3Len, pkts[0].L3Len)
}

func TestStubRingRecvBurstCapsAtMax(t *testing.T) {
	ring, _, _ := newStubRing()
	for i := 0; i < 5; i++ {
		ring.Inject([]byte("x"), nil)
	}
	pkts, err := ring.RecvBurst(3)
	require.NoError(t, err)
	assert.Len(t, pkts, 3)

	remaining, err := ring.RecvBurst(8)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestStubRingSendBurstRecordsSent(t *testing.T) {
	ring, _, _ := newStubRing()
	pkt := ring.AllocTX()
	require.NotNil(t, pkt)

	n, err := ring.SendBurst([]*Packet{pkt})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, ring.Sent(), 1)
}

func TestStubRingAllocTXStampsHeaderLens(t *testing.T) {
	ring, _, _ := newStubRing()
	pkt := ring.AllocTX()
	require.NotNil(t, pkt)
	assert.Equal(t, defaultL2Len, pkt.L2Len)
	assert.Equal(t, defaultL3Len, pkt.L3Len)
}

func TestStubRingFreeRXBulkReturnsToPool(t *testing.T) {
	ring, rxPool, _ := newStubRing()
	ring.Inject([]byte("a"), nil)
	ring.Inject([]byte("b"), nil)
	pkts, err := ring.RecvBurst(8)
	require.NoError(t, err)
	require.Len(t, pkts, 2)

	before := rxPool.InUse()
	ring.FreeRXBulk(pkts)
	assert.Equal(t, before-2, rxPool.InUse())
}

func TestStubRingAllocTXExhaustion(t *testing.T) {
	rxPool := bufpool.New("rx", 4, 2)
	txPool := bufpool.New("tx", 2, 1)
	ring := NewStubRing(rxPool, txPool)

	var got int
	for i := 0; i < 10; i++ {
		if ring.AllocTX() != nil {
			got++
		}
	}
	assert.Equal(t, 2, got)
}
