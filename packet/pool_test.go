package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 2, BufferSize: 16})

	pkt, err := pool.Acquire([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, pkt.Payload)
	assert.Equal(t, 1, pool.InUse())

	pkt.Release()
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1, BufferSize: 16})

	first, err := pool.Acquire([]byte{1})
	require.NoError(t, err)

	_, err = pool.Acquire([]byte{2})
	assert.ErrorIs(t, err, ErrPoolExhausted)

	first.Release()

	second, err := pool.Acquire([]byte{3})
	require.NoError(t, err)
	second.Release()
}

func TestPoolPayloadTooLarge(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1, BufferSize: 4})

	_, err := pool.Acquire(make([]byte, 5))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPoolPoisoning(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1, BufferSize: 4, Poisoning: true})

	pkt, err := pool.Acquire([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	buf := pkt.buf
	pkt.Release()

	for i := range buf {
		assert.Equal(t, byte(PoisonByte), buf[i])
	}
}

func TestPacketRetainRelease(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 1, BufferSize: 16})

	pkt, err := pool.Acquire([]byte{1})
	require.NoError(t, err)

	pkt.Retain()
	pkt.Release()
	assert.Equal(t, 1, pool.InUse(), "still one holder")

	pkt.Release()
	assert.Equal(t, 0, pool.InUse())
}

func TestPacketEnd(t *testing.T) {
	pkt := &Packet{Timestamp: 100, Duration: 480}
	assert.Equal(t, pkt.Timestamp+480, pkt.End())
}
