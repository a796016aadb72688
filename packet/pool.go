package packet

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// PoisonByte is written over released payload buffers when poisoning is
// enabled, so that reads of freed memory produce loud garbage.
const PoisonByte = 0xDD

// PoolConfig holds configuration for creating a packet pool.
type PoolConfig struct {
	// Capacity is the number of packets the pool holds.
	Capacity int
	// BufferSize is the payload buffer size of each packet in bytes.
	BufferSize int
	// Poisoning fills released buffers with PoisonByte.
	Poisoning bool
}

// Pool is a bounded pool of reference-counted packets.
//
// Allocation never grows the pool: when every packet is in flight,
// Acquire fails with ErrPoolExhausted and the caller drops the packet.
// This keeps allocation latency bounded under load.
type Pool struct {
	mu      sync.Mutex
	free    []*Packet
	cfg     PoolConfig
	inUse   int
	highTide int
}

// NewPool creates a pool with cfg.Capacity pre-allocated packets.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 2048
	}

	p := &Pool{cfg: cfg}
	p.free = make([]*Packet, 0, cfg.Capacity)
	for i := 0; i < cfg.Capacity; i++ {
		p.free = append(p.free, &Packet{
			pool: p,
			buf:  make([]byte, cfg.BufferSize),
		})
	}

	logrus.WithFields(logrus.Fields{
		"capacity":    cfg.Capacity,
		"buffer_size": cfg.BufferSize,
		"poisoning":   cfg.Poisoning,
	}).Debug("packet pool created")

	return p
}

// Acquire takes a packet from the pool and copies payload into its
// buffer. The returned packet starts with one reference.
func (p *Pool) Acquire(payload []byte) (*Packet, error) {
	if len(payload) > p.cfg.BufferSize {
		return nil, ErrPayloadTooLarge
	}

	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	pkt := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse++
	if p.inUse > p.highTide {
		p.highTide = p.inUse
	}
	p.mu.Unlock()

	n := copy(pkt.buf, payload)
	pkt.Payload = pkt.buf[:n]
	pkt.refs.Store(1)
	return pkt, nil
}

// release returns a packet to the free list. Called by Packet.Release
// when the reference count reaches zero.
func (p *Pool) release(pkt *Packet) {
	if p.cfg.Poisoning {
		for i := range pkt.buf {
			pkt.buf[i] = PoisonByte
		}
	}

	*pkt = Packet{pool: p, buf: pkt.buf}

	p.mu.Lock()
	p.free = append(p.free, pkt)
	p.inUse--
	p.mu.Unlock()
}

// InUse returns the number of packets currently in flight.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
