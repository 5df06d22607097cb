package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocFree(t *testing.T) {
	p := New("rx", 100, 10)

	b := p.Alloc()
	require.NotNil(t, b)
	assert.Equal(t, 1, p.InUse())

	b.Len = 42
	p.Free(b)
	assert.Equal(t, 0, p.InUse())
	assert.Zero(t, b.Len, "Free must reset the buffer")
}

func TestPoolExhaustion(t *testing.T) {
	p := New("tx", 4, 1)

	var bufs []*Buffer
	for i := 0; i < 4; i++ {
		b := p.Alloc()
		require.NotNil(t, b)
		bufs = append(bufs, b)
	}

	assert.Nil(t, p.Alloc(), "pool should be exhausted after hitting fixed size")

	p.Free(bufs[0])
	assert.NotNil(t, p.Alloc(), "a freed buffer should be allocatable again")
}

func TestPoolAllocBurstPartial(t *testing.T) {
	p := New("rx", 4, 1)

	out := p.AllocBurst(10)
	assert.Len(t, out, 4, "burst alloc should stop short rather than error")
}

func TestPoolFreeBulk(t *testing.T) {
	p := New("rx", 10, 2)
	bufs := p.AllocBurst(5)
	require.Len(t, bufs, 5)

	p.FreeBulk(bufs)
	assert.Equal(t, 0, p.InUse())
}

func TestPoolInvalidSizingPanics(t *testing.T) {
	assert.Panics(t, func() { New("bad", 10, 8) }, "cache size too close to pool size must panic")
}
