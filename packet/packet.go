package packet

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiorx/rtptime"
)

// Kind identifies the stream a packet belongs to.
type Kind uint8

const (
	// KindSource carries media payload.
	KindSource Kind = iota
	// KindRepair carries FEC repair payload.
	KindRepair
	// KindControl carries control-plane payload.
	KindControl
)

// String returns a human-readable stream kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindRepair:
		return "repair"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Packet is one received media packet. It is immutable after the session
// router accepts it; the network and audio contexts share it through the
// reference count.
type Packet struct {
	// Source is the sender address the packet arrived from.
	Source net.Addr
	// SourceKey is the stable session key derived from Source.
	SourceKey string

	// Kind is the stream the packet belongs to.
	Kind Kind
	// Seq is the wire sequence number, wrap-safe 16-bit.
	Seq uint16
	// Timestamp is the media timestamp of the first sample.
	Timestamp rtptime.MediaTS
	// Duration is the payload length in per-channel samples.
	Duration uint32

	// CaptureTime is the sender capture wall clock, zero when unknown.
	CaptureTime time.Time

	// BlockIndex and BlockSize describe the packet's position inside an
	// FEC block; BlockSize is zero when FEC is disabled.
	BlockIndex int
	BlockSize  int

	// Payload is the opaque payload bytes, backed by pool storage.
	Payload []byte

	refs atomic.Int32
	pool *Pool
	buf  []byte
}

// End returns the media timestamp one past the last sample.
func (p *Packet) End() rtptime.MediaTS {
	return p.Timestamp + rtptime.MediaTS(p.Duration)
}

// Retain increments the reference count. Each holder that outlives the
// caller must retain the packet and release it when done.
func (p *Packet) Retain() *Packet {
	p.refs.Add(1)
	return p
}

// Release decrements the reference count and returns the packet to its
// pool when it reaches zero. Releasing a free packet panics.
func (p *Packet) Release() {
	n := p.refs.Add(-1)
	if n < 0 {
		panic("packet: release of free packet")
	}
	if n == 0 && p.pool != nil {
		p.pool.release(p)
	}
}
