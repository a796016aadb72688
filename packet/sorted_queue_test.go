package packet

import (
	"math"
	"testing"

	"github.com/opd-ai/audiorx/rtptime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPacket(t *testing.T, pool *Pool, seq uint16, ts rtptime.MediaTS, dur uint32) *Packet {
	t.Helper()
	pkt, err := pool.Acquire([]byte{0})
	require.NoError(t, err)
	pkt.Seq = seq
	pkt.Timestamp = ts
	pkt.Duration = dur
	return pkt
}

func TestSortedQueueOrdering(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 16, BufferSize: 4})
	q := NewSortedQueue(16)

	// Insert out of order.
	for _, seq := range []uint16{2, 0, 3, 1} {
		pkt := newTestPacket(t, pool, seq, rtptime.MediaTS(uint32(seq)*480), 480)
		require.NoError(t, q.Insert(pkt))
	}

	for want := uint16(0); want < 4; want++ {
		pkt, err := q.PopFront()
		require.NoError(t, err)
		require.NotNil(t, pkt)
		assert.Equal(t, want, pkt.Seq)
		pkt.Release()
	}

	pkt, err := q.PopFront()
	require.NoError(t, err)
	assert.Nil(t, pkt)
}

func TestSortedQueueWrapOrdering(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 16, BufferSize: 4})
	q := NewSortedQueue(16)

	// Timestamps straddling the 32-bit wrap: the numerically larger
	// pre-wrap timestamp must come out first.
	early := newTestPacket(t, pool, 100, math.MaxUint32-479, 480)
	late := newTestPacket(t, pool, 101, 0, 480)
	require.NoError(t, q.Insert(late))
	require.NoError(t, q.Insert(early))

	first, err := q.PopFront()
	require.NoError(t, err)
	assert.Equal(t, uint16(100), first.Seq)
	first.Release()

	second, err := q.PopFront()
	require.NoError(t, err)
	assert.Equal(t, uint16(101), second.Seq)
	second.Release()
}

func TestSortedQueueDuplicates(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 16, BufferSize: 4})
	q := NewSortedQueue(16)

	require.NoError(t, q.Insert(newTestPacket(t, pool, 5, 2400, 480)))
	require.NoError(t, q.Insert(newTestPacket(t, pool, 5, 2400, 480)))

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(1), q.Duplicates())
	q.Close()
	assert.Equal(t, 0, pool.InUse())
}

func TestSortedQueueOverflow(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 8, BufferSize: 4})
	q := NewSortedQueue(2)

	for seq := uint16(0); seq < 3; seq++ {
		require.NoError(t, q.Insert(newTestPacket(t, pool, seq, rtptime.MediaTS(uint32(seq)*480), 480)))
	}

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	// Oldest evicted: front is now seq 1.
	front, err := q.PopFront()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), front.Seq)
	front.Release()
	q.Close()
}

func TestSortedQueueLatestEnd(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 8, BufferSize: 4})
	q := NewSortedQueue(8)

	_, ok := q.LatestEnd()
	assert.False(t, ok)

	require.NoError(t, q.Insert(newTestPacket(t, pool, 0, 0, 480)))
	require.NoError(t, q.Insert(newTestPacket(t, pool, 1, 480, 480)))

	end, ok := q.LatestEnd()
	require.True(t, ok)
	assert.Equal(t, rtptime.MediaTS(960), end)

	// Popping does not regress the latest end.
	pkt, err := q.PopFront()
	require.NoError(t, err)
	pkt.Release()

	end, ok = q.LatestEnd()
	require.True(t, ok)
	assert.Equal(t, rtptime.MediaTS(960), end)
	q.Close()
}

func TestSortedQueueClosed(t *testing.T) {
	pool := NewPool(PoolConfig{Capacity: 8, BufferSize: 4})
	q := NewSortedQueue(8)

	require.NoError(t, q.Insert(newTestPacket(t, pool, 0, 0, 480)))
	q.Close()

	assert.Equal(t, 0, pool.InUse(), "close releases queued packets")

	err := q.Insert(newTestPacket(t, pool, 1, 480, 480))
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, 0, pool.InUse(), "rejected insert releases the packet")

	_, err = q.PopFront()
	assert.ErrorIs(t, err, ErrQueueClosed)
}
