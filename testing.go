package tinyquanta

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/zhluo94/tinyquanta/internal/bufpool"
	"github.com/zhluo94/tinyquanta/internal/nic"
)

// MockBackend is an in-memory Backend for dispatcher/shard tests, adapted
// from the teacher's testing.go MockBackend: it tracks call counts the same
// way, but its payload is a numeric-key/string-value map instead of a byte
// buffer, matching this engine's point-get contract instead of ReadAt/WriteAt.
type MockBackend struct {
	mu        sync.RWMutex
	data      map[uint32]string
	closed    bool
	getCalls  int
	failNext  bool
	failErr   error
}

// NewMockBackend creates a mock backend pre-populated with n keys
// (key0..key{n-1} by numeric value) mapping to "value", matching the
// embedded store's documented fixed-value contract (§4.3).
func NewMockBackend(n int) *MockBackend {
	m := &MockBackend{data: make(map[uint32]string, n)}
	for i := 0; i < n; i++ {
		m.data[uint32(i)] = "value"
	}
	return m
}

// Get implements Backend.
func (m *MockBackend) Get(ctx context.Context, key uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.closed {
		return "", fmt.Errorf("mockbackend: closed")
	}
	if m.failNext {
		m.failNext = false
		return "", m.failErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("mockbackend: key %d not found", key)
	}
	return v, nil
}

// Close implements Backend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Set inserts or overwrites one key, for tests that want non-default values.
func (m *MockBackend) Set(key uint32, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// FailNextGet makes the next Get call return err instead of a lookup,
// simulating the "backend lookup error" fatal condition of §7.
func (m *MockBackend) FailNextGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
	m.failErr = err
}

// GetCalls reports how many times Get has been called, for assertions.
func (m *MockBackend) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

// MockNIC wraps an internal/nic.StubRing so dispatcher/shard tests at the
// module root can drive E1-E6-style scenarios (Inject a request, run the
// loop, Sent() the reply) without reaching into internal/nic directly,
// mirroring the teacher's own MockBackend convenience wrapper.
type MockNIC struct {
	*nic.StubRing
}

// NewMockNIC creates a MockNIC with its own small RX/TX buffer pools, sized
// generously enough for unit tests that don't exercise pool exhaustion.
func NewMockNIC() *MockNIC {
	rxPool := bufpool.New("mock-rx", 4096, 64)
	txPool := bufpool.New("mock-tx", 4096, 64)
	return &MockNIC{StubRing: nic.NewStubRing(rxPool, txPool)}
}

// InjectRequest builds and injects a 16-byte RequestHeader datagram as if it
// had just arrived from addr, the common setup step for E1/E2-style tests.
func (m *MockNIC) InjectRequest(hdr RequestHeader, addr *net.UDPAddr) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], hdr.ID)
	binary.BigEndian.PutUint32(buf[4:8], hdr.ReqType)
	binary.BigEndian.PutUint32(buf[8:12], hdr.ReqSize)
	binary.BigEndian.PutUint32(buf[12:16], hdr.RunNs)
	m.Inject(buf, addr)
}

// InjectMalformedRequest behaves like InjectRequest but stamps a
// destination IP that does not match the stub's own local address,
// simulating the §7/E2 malformed-drop scenario.
func (m *MockNIC) InjectMalformedRequest(hdr RequestHeader, addr *net.UDPAddr) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], hdr.ID)
	binary.BigEndian.PutUint32(buf[4:8], hdr.ReqType)
	binary.BigEndian.PutUint32(buf[8:12], hdr.ReqSize)
	binary.BigEndian.PutUint32(buf[12:16], hdr.RunNs)

	mac, _ := m.LocalAddr()
	mac[0] ^= 0xff
	m.InjectRaw(buf, addr, mac, net.ParseIP("192.168.255.255"), nic.EtherTypeIPv4, nic.ProtoUDP)
}
