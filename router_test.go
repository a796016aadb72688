package audiorx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiorx/fec"
	"github.com/opd-ai/audiorx/metrics"
	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

func newTestRouter(t *testing.T, mutate func(*Config)) (*Router, *packet.Pool, *fakeTime) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.SampleRate = 48000
	cfg.Channels = 1
	if mutate != nil {
		mutate(&cfg)
	}
	cfg = cfg.withDefaults()
	require.NoError(t, cfg.validate())

	pool := packet.NewPool(packet.PoolConfig{Capacity: 64, BufferSize: 2048})
	ft := newFakeTime()
	return newRouter(cfg, pool, metrics.New(nil), ft), pool, ft
}

func routerPacket(t *testing.T, pool *packet.Pool, sender int, kind packet.Kind, seq uint16) *packet.Packet {
	t.Helper()
	pkt, err := pool.Acquire(make([]byte, 960))
	require.NoError(t, err)
	addr := senderAddr(sender)
	pkt.Source = addr
	pkt.SourceKey = addr.String()
	pkt.Kind = kind
	pkt.Seq = seq
	pkt.Timestamp = rtptime.MediaTS(480 * uint32(seq))
	pkt.Duration = 480
	return pkt
}

func TestRouterCreatesOneSessionPerSender(t *testing.T) {
	r, pool, ft := newTestRouter(t, nil)
	defer r.Close()

	for seq := uint16(0); seq < 3; seq++ {
		require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, seq), ft.Now()))
	}
	require.NoError(t, r.Dispatch(routerPacket(t, pool, 2, packet.KindSource, 0), ft.Now()))

	assert.Equal(t, 2, r.sessionCount())

	// Each sender's packets landed in its own session's queue.
	snapshot := r.Snapshot()
	var lens []int
	for _, sess := range snapshot {
		lens = append(lens, sess.sourceQueue.Len())
	}
	assert.ElementsMatch(t, []int{3, 1}, lens)
}

func TestRouterSessionLimit(t *testing.T) {
	r, pool, ft := newTestRouter(t, func(c *Config) { c.MaxSessions = 1 })
	defer r.Close()

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now()))

	err := r.Dispatch(routerPacket(t, pool, 2, packet.KindSource, 0), ft.Now())
	assert.ErrorIs(t, err, errSessionLimit)
	assert.Equal(t, 1, r.sessionCount())
}

func TestRouterPruneIdle(t *testing.T) {
	r, pool, ft := newTestRouter(t, func(c *Config) { c.IdleTimeout = time.Second })
	defer r.Close()

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now()))
	require.Equal(t, 1, r.sessionCount())

	r.Prune(ft.Now().Add(500 * time.Millisecond))
	assert.Equal(t, 1, r.sessionCount(), "not yet idle")

	r.Prune(ft.Now().Add(1500 * time.Millisecond))
	assert.Equal(t, 0, r.sessionCount(), "idle session destroyed")
}

func TestRouterPruneTornDown(t *testing.T) {
	r, pool, ft := newTestRouter(t, nil)
	defer r.Close()

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now()))
	r.Snapshot()[0].markTeardown("test")

	r.Prune(ft.Now())
	assert.Equal(t, 0, r.sessionCount())
}

func TestRouterRecreatesAfterPrune(t *testing.T) {
	r, pool, ft := newTestRouter(t, nil)
	defer r.Close()

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now()))
	first := r.Snapshot()[0]
	first.markTeardown("test")
	r.Prune(ft.Now())

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 1), ft.Now()))
	assert.Equal(t, 1, r.sessionCount())
	assert.NotSame(t, first, r.Snapshot()[0], "session was rebuilt")
}

func TestRouterClosedRejectsPackets(t *testing.T) {
	r, pool, ft := newTestRouter(t, nil)
	r.Close()

	err := r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, pool.InUse(), "rejected packet released")
}

func TestRouterRoutesRepairToRepairQueue(t *testing.T) {
	r, pool, ft := newTestRouter(t, func(c *Config) {
		c.FECScheme = fec.SchemeSingleParity
		c.FECBlockSize = 8
	})
	defer r.Close()

	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindSource, 0), ft.Now()))
	require.NoError(t, r.Dispatch(routerPacket(t, pool, 1, packet.KindRepair, 0), ft.Now()))

	sess := r.Snapshot()[0]
	assert.Equal(t, 1, sess.sourceQueue.Len())
	require.NotNil(t, sess.repairQueue)
	assert.Equal(t, 1, sess.repairQueue.Len())
}
