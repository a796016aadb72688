package audiorx

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/metrics"
	"github.com/opd-ai/audiorx/packet"
)

// ContextConfig configures the shared context.
type ContextConfig struct {
	// MaxPacketSize bounds packet payloads and sizes the pool buffers.
	MaxPacketSize int
	// PacketPoolCapacity is the number of pooled packets shared by all
	// receivers of the context.
	PacketPoolCapacity int
	// Poisoning fills released pool buffers with a sentinel byte.
	Poisoning bool
	// Registry receives the context's Prometheus collectors; nil
	// disables metrics.
	Registry prometheus.Registerer
}

// Context holds the resources shared by receivers: the packet pool and
// the metrics set.
//
// A context must outlive its receivers; Close fails while any receiver
// is still open.
type Context struct {
	pool    *packet.Pool
	metrics *metrics.Set

	maxPacketSize int
	dependents    atomic.Int32
	closed        atomic.Bool
}

// NewContext creates a context.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = 2048
	}
	if cfg.MaxPacketSize < 0 {
		return nil, fmt.Errorf("%w: max packet size %d", ErrInvalidConfig, cfg.MaxPacketSize)
	}
	if cfg.PacketPoolCapacity == 0 {
		cfg.PacketPoolCapacity = 1024
	}
	if cfg.PacketPoolCapacity < 0 {
		return nil, fmt.Errorf("%w: packet pool capacity %d", ErrInvalidConfig, cfg.PacketPoolCapacity)
	}

	ctx := &Context{
		pool: packet.NewPool(packet.PoolConfig{
			Capacity:   cfg.PacketPoolCapacity,
			BufferSize: cfg.MaxPacketSize,
			Poisoning:  cfg.Poisoning,
		}),
		metrics:       metrics.New(cfg.Registry),
		maxPacketSize: cfg.MaxPacketSize,
	}

	logrus.WithFields(logrus.Fields{
		"max_packet_size": cfg.MaxPacketSize,
		"pool_capacity":   cfg.PacketPoolCapacity,
		"poisoning":       cfg.Poisoning,
		"metrics":         ctx.metrics.Enabled(),
	}).Info("context created")

	return ctx, nil
}

// acquire registers a dependent receiver.
func (c *Context) acquire() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.dependents.Add(1)
	return nil
}

// release unregisters a dependent receiver.
func (c *Context) release() {
	c.dependents.Add(-1)
}

// Close shuts the context down. Fails while receivers opened on it are
// still alive.
func (c *Context) Close() error {
	if n := c.dependents.Load(); n > 0 {
		return fmt.Errorf("%w: %d receivers still open", ErrInvalidArgument, n)
	}
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	logrus.Info("context closed")
	return nil
}
