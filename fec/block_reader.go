package fec

import (
	"sort"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// BlockReader adapts a Decoder to the packet.Reader interface.
//
// On every read it moves newly queued source and repair packets into
// the decoder, drains whatever blocks became ready, and hands out the
// earliest pending source packet. Gaps the decoder could not repair
// simply never appear in the output; the depacketizer turns them into
// silence.
type BlockReader struct {
	source  *packet.SortedQueue
	repair  *packet.SortedQueue
	decoder Decoder
	pending []*packet.Packet
}

// NewBlockReader wires the per-session queues to a decoder.
func NewBlockReader(source, repair *packet.SortedQueue, decoder Decoder) *BlockReader {
	return &BlockReader{
		source:  source,
		repair:  repair,
		decoder: decoder,
	}
}

// ReadPacket returns the next source packet in media-timestamp order,
// or nil when nothing is ready.
func (r *BlockReader) ReadPacket() (*packet.Packet, error) {
	if err := r.fill(); err != nil {
		return nil, err
	}
	if len(r.pending) == 0 {
		return nil, nil
	}
	pkt := r.pending[0]
	copy(r.pending, r.pending[1:])
	r.pending[len(r.pending)-1] = nil
	r.pending = r.pending[:len(r.pending)-1]
	return pkt, nil
}

func (r *BlockReader) fill() error {
	for {
		pkt, err := r.source.PopFront()
		if err != nil {
			return err
		}
		if pkt == nil {
			break
		}
		r.decoder.SubmitSource(pkt)
	}
	for {
		pkt, err := r.repair.PopFront()
		if err != nil {
			return err
		}
		if pkt == nil {
			break
		}
		r.decoder.SubmitRepair(pkt)
	}

	if drained := r.decoder.Drain(); len(drained) > 0 {
		r.pending = append(r.pending, drained...)
		sort.SliceStable(r.pending, func(i, j int) bool {
			return rtptime.Before(r.pending[i].Timestamp, r.pending[j].Timestamp)
		})
	}
	return nil
}

// WindowStatus exposes the underlying decoder's counters.
func (r *BlockReader) WindowStatus() WindowStatus {
	return r.decoder.WindowStatus()
}

// Close releases pending and windowed packets.
func (r *BlockReader) Close() {
	for _, pkt := range r.pending {
		pkt.Release()
	}
	r.pending = nil
	r.decoder.Close()
}
