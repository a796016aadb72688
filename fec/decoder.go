package fec

import (
	"github.com/opd-ai/audiorx/packet"
)

// Scheme selects the FEC encoding used by the sender.
type Scheme uint8

const (
	// SchemeDisable turns FEC off; the repair stream is ignored.
	SchemeDisable Scheme = iota
	// SchemeSingleParity is the built-in XOR parity code: one repair
	// packet per block, recovers one lost source packet.
	SchemeSingleParity
)

// String returns a human-readable scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeDisable:
		return "disable"
	case SchemeSingleParity:
		return "parity"
	default:
		return "unknown"
	}
}

// WindowStatus describes the decoder's current block window.
type WindowStatus struct {
	// OpenBlocks is the number of blocks awaiting completion.
	OpenBlocks int
	// Recovered counts source packets reconstructed from repair data.
	Recovered uint64
	// Expired counts blocks flushed incomplete past the window.
	Expired uint64
}

// Decoder reconstructs source packets across a bounded block window.
//
// Submitted packets are owned by the decoder until they are drained
// (ownership of the reference transfers in and back out). Drained
// packets come out in media-timestamp order.
type Decoder interface {
	// SubmitSource hands a received source packet to the decoder.
	SubmitSource(pkt *packet.Packet)
	// SubmitRepair hands a received repair packet to the decoder.
	SubmitRepair(pkt *packet.Packet)
	// Drain returns ready source packets in media-timestamp order.
	Drain() []*packet.Packet
	// WindowStatus reports window bookkeeping counters.
	WindowStatus() WindowStatus
	// Close releases all packets still held in the window.
	Close()
}
