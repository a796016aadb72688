package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// rawDecoder interprets each payload byte as one mono PCM sample.
type rawDecoder struct{}

func (rawDecoder) Decode(payload []byte) ([]int16, error) {
	pcm := make([]int16, len(payload))
	for i, b := range payload {
		pcm[i] = int16(b)
	}
	return pcm, nil
}

func monoSpec() rtptime.SampleSpec {
	return rtptime.SampleSpec{SampleRate: 48000, Channels: 1}
}

func insertRaw(t *testing.T, pool *packet.Pool, q *packet.SortedQueue, seq uint16, ts rtptime.MediaTS, payload []byte) {
	t.Helper()
	pkt, err := pool.Acquire(payload)
	require.NoError(t, err)
	pkt.Seq = seq
	pkt.Timestamp = ts
	pkt.Duration = uint32(len(payload))
	require.NoError(t, q.Insert(pkt))
}

func newRawDepacketizer(q *packet.SortedQueue, maxGap int32) *Depacketizer {
	return NewDepacketizer(q, rawDecoder{}, DepacketizerConfig{
		Spec:   monoSpec(),
		MaxGap: maxGap,
	})
}

func TestDepacketizerSilenceBeforeFirstPacket(t *testing.T) {
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	frame := NewFrame(8)
	frame.Samples[0] = 99 // must be overwritten
	require.NoError(t, d.ReadFrame(frame))

	assert.Equal(t, make([]int16, 8), frame.Samples)
	assert.False(t, d.Started())
}

func TestDepacketizerAlignsOnFirstPacket(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	insertRaw(t, pool, q, 0, 1000, []byte{1, 2, 3, 4})

	frame := NewFrame(4)
	require.NoError(t, d.ReadFrame(frame))

	assert.True(t, d.Started())
	assert.Equal(t, []int16{1, 2, 3, 4}, frame.Samples)
	assert.Equal(t, rtptime.MediaTS(1004), d.NextTimestamp())
}

func TestDepacketizerSpansPackets(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	insertRaw(t, pool, q, 0, 0, []byte{1, 2, 3})
	insertRaw(t, pool, q, 1, 3, []byte{4, 5, 6})

	frame := NewFrame(4)
	require.NoError(t, d.ReadFrame(frame))
	assert.Equal(t, []int16{1, 2, 3, 4}, frame.Samples)

	require.NoError(t, d.ReadFrame(frame))
	assert.Equal(t, []int16{5, 6, 0, 0}, frame.Samples)
	assert.Equal(t, rtptime.MediaTS(8), d.NextTimestamp())
}

func TestDepacketizerGapFill(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	insertRaw(t, pool, q, 0, 0, []byte{1, 1})
	// seq 1 at ts 2 lost
	insertRaw(t, pool, q, 2, 4, []byte{3, 3})

	frame := NewFrame(6)
	require.NoError(t, d.ReadFrame(frame))

	assert.Equal(t, []int16{1, 1, 0, 0, 3, 3}, frame.Samples)
	assert.Equal(t, rtptime.MediaTS(6), d.NextTimestamp())
}

func TestDepacketizerMonotonicTimestamps(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 32, BufferSize: 64})
	q := packet.NewSortedQueue(32)
	d := newRawDepacketizer(q, 0)

	insertRaw(t, pool, q, 0, 0, []byte{1, 2, 3, 4})
	insertRaw(t, pool, q, 2, 8, []byte{9, 9, 9, 9})

	frame := NewFrame(4)
	prev := rtptime.MediaTS(0)
	for i := 0; i < 4; i++ {
		require.NoError(t, d.ReadFrame(frame))
		if i > 0 {
			assert.True(t, rtptime.After(d.NextTimestamp(), prev),
				"output position must strictly advance")
		}
		prev = d.NextTimestamp()
	}
}

func TestDepacketizerDropsLatePackets(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	insertRaw(t, pool, q, 1, 100, []byte{5, 5})
	frame := NewFrame(4)
	require.NoError(t, d.ReadFrame(frame))
	assert.Equal(t, rtptime.MediaTS(104), d.NextTimestamp())

	// Arrives entirely before the current position.
	insertRaw(t, pool, q, 0, 98, []byte{7, 7})
	require.NoError(t, d.ReadFrame(frame))
	assert.Equal(t, []int16{0, 0, 0, 0}, frame.Samples)
	assert.Equal(t, uint64(1), d.lateDrops)
}

func TestDepacketizerDesync(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 50)

	insertRaw(t, pool, q, 0, 0, []byte{1, 1})
	frame := NewFrame(2)
	require.NoError(t, d.ReadFrame(frame))

	// Far beyond the permitted gap.
	insertRaw(t, pool, q, 1, 1000, []byte{2, 2})
	err := d.ReadFrame(frame)
	assert.ErrorIs(t, err, ErrDesync)

	// Broken stays broken.
	err = d.ReadFrame(frame)
	assert.ErrorIs(t, err, ErrDesync)
}

func TestDepacketizerCaptureTimestamp(t *testing.T) {
	pool := packet.NewPool(packet.PoolConfig{Capacity: 8, BufferSize: 64})
	q := packet.NewSortedQueue(16)
	d := newRawDepacketizer(q, 0)

	capture := timeAt(t, "2026-08-06T12:00:00Z")
	pkt, err := pool.Acquire([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	pkt.Seq = 0
	pkt.Timestamp = 0
	pkt.Duration = 4
	pkt.CaptureTime = capture
	require.NoError(t, q.Insert(pkt))

	frame := NewFrame(2)
	require.NoError(t, d.ReadFrame(frame))
	assert.Equal(t, capture, frame.Capture)

	// Second half of the packet: capture shifted by two samples.
	require.NoError(t, d.ReadFrame(frame))
	wantOffset := monoSpec().SamplesToNs(2)
	assert.Equal(t, capture.Add(wantOffset), frame.Capture)
}
