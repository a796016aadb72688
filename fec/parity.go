package fec

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// DefaultWindowBlocks bounds how many blocks a decoder keeps open before
// flushing the oldest one incomplete.
const DefaultWindowBlocks = 4

// ParityConfig configures the single-parity decoder.
type ParityConfig struct {
	// BlockSize is the number of source packets per block.
	BlockSize int
	// RepairCount is the number of repair packets the sender emits per
	// block. Only the first (the XOR parity) is used for recovery.
	RepairCount int
	// WindowBlocks bounds the number of open blocks; zero selects
	// DefaultWindowBlocks.
	WindowBlocks int
}

type parityBlock struct {
	number  uint16
	sources []*packet.Packet // indexed by block position, nil = missing
	parity  *packet.Packet
	have    int
	drained bool
}

// ParityDecoder implements Decoder with an XOR parity code.
//
// Block membership is derived from sequence numbers: source packet seq S
// belongs to block S/BlockSize at position S%BlockSize, and repair
// packet seq R covers block R/RepairCount. A block is released as soon
// as every source position is filled, either received or reconstructed.
type ParityDecoder struct {
	cfg    ParityConfig
	pool   *packet.Pool
	blocks map[uint16]*parityBlock
	order  []uint16 // open blocks in arrival order

	newest    uint16
	hasNewest bool

	ready []*packet.Packet

	recovered uint64
	expired   uint64
}

// NewParityDecoder creates a single-parity decoder. Recovered packets
// are allocated from pool.
func NewParityDecoder(cfg ParityConfig, pool *packet.Pool) *ParityDecoder {
	if cfg.WindowBlocks <= 0 {
		cfg.WindowBlocks = DefaultWindowBlocks
	}
	if cfg.RepairCount <= 0 {
		cfg.RepairCount = 1
	}
	return &ParityDecoder{
		cfg:    cfg,
		pool:   pool,
		blocks: make(map[uint16]*parityBlock),
	}
}

func (d *ParityDecoder) block(number uint16) *parityBlock {
	if !d.hasNewest || rtptime.SeqDiff(number, d.newest) > 0 {
		d.newest = number
		d.hasNewest = true
	}
	b, ok := d.blocks[number]
	if !ok {
		b = &parityBlock{
			number:  number,
			sources: make([]*packet.Packet, d.cfg.BlockSize),
		}
		d.blocks[number] = b
		d.order = append(d.order, number)
	}
	return b
}

// SubmitSource adds a received source packet to its block.
func (d *ParityDecoder) SubmitSource(pkt *packet.Packet) {
	number := pkt.Seq / uint16(d.cfg.BlockSize)
	index := int(pkt.Seq % uint16(d.cfg.BlockSize))

	b := d.block(number)
	if b.sources[index] != nil {
		pkt.Release()
		return
	}
	b.sources[index] = pkt
	b.have++

	d.tryComplete(b)
	d.enforceWindow()
}

// SubmitRepair adds a received repair packet to its block. Non-parity
// repair packets (index > 0) are discarded.
func (d *ParityDecoder) SubmitRepair(pkt *packet.Packet) {
	number := pkt.Seq / uint16(d.cfg.RepairCount)
	index := int(pkt.Seq % uint16(d.cfg.RepairCount))

	if index != 0 {
		pkt.Release()
		return
	}

	b := d.block(number)
	if b.parity != nil {
		pkt.Release()
		return
	}
	b.parity = pkt

	d.tryComplete(b)
	d.enforceWindow()
}

// tryComplete releases a block to the ready list when every source
// position is filled, reconstructing a single missing packet from the
// parity when possible.
func (d *ParityDecoder) tryComplete(b *parityBlock) {
	if b.drained {
		return
	}

	if b.have == d.cfg.BlockSize {
		d.emit(b, false)
		return
	}

	if b.have == d.cfg.BlockSize-1 && b.parity != nil {
		if d.reconstruct(b) {
			d.emit(b, false)
		}
	}
}

// reconstruct rebuilds the one missing source packet of b by XORing the
// parity payload with every present source payload.
func (d *ParityDecoder) reconstruct(b *parityBlock) bool {
	missing := -1
	for i, src := range b.sources {
		if src == nil {
			missing = i
			break
		}
	}
	if missing < 0 {
		return false
	}

	buf := make([]byte, len(b.parity.Payload))
	copy(buf, b.parity.Payload)

	var template *packet.Packet
	for _, src := range b.sources {
		if src == nil {
			continue
		}
		if len(src.Payload) != len(buf) {
			// Parity requires equal-size payloads inside a block.
			return false
		}
		for i := range buf {
			buf[i] ^= src.Payload[i]
		}
		template = src
	}

	pkt, err := d.pool.Acquire(buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"block": b.number,
			"error": err.Error(),
		}).Warn("FEC recovery skipped: packet pool exhausted")
		return false
	}

	templateIndex := int(template.Seq % uint16(d.cfg.BlockSize))
	offset := int32(missing-templateIndex) * int32(template.Duration)

	pkt.Source = template.Source
	pkt.SourceKey = template.SourceKey
	pkt.Kind = packet.KindSource
	pkt.Seq = b.number*uint16(d.cfg.BlockSize) + uint16(missing)
	pkt.Timestamp = template.Timestamp + rtptime.MediaTS(offset)
	pkt.Duration = template.Duration
	pkt.BlockSize = d.cfg.BlockSize
	pkt.BlockIndex = missing

	b.sources[missing] = pkt
	b.have++
	d.recovered++

	logrus.WithFields(logrus.Fields{
		"block":     b.number,
		"seq":       pkt.Seq,
		"timestamp": uint32(pkt.Timestamp),
	}).Debug("FEC recovered source packet")

	return true
}

// emit moves the block's present source packets to the ready list and
// closes the block.
func (d *ParityDecoder) emit(b *parityBlock, expired bool) {
	for _, src := range b.sources {
		if src != nil {
			d.ready = append(d.ready, src)
		}
	}
	if b.parity != nil {
		b.parity.Release()
		b.parity = nil
	}
	b.sources = nil
	b.drained = true
	if expired {
		d.expired++
	}
	d.remove(b.number)
}

func (d *ParityDecoder) remove(number uint16) {
	delete(d.blocks, number)
	for i, n := range d.order {
		if n == number {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

// enforceWindow flushes open blocks that have fallen behind the newest
// block by the window size. Flushed blocks surrender whatever source
// they hold; the remainder becomes a gap.
func (d *ParityDecoder) enforceWindow() {
	stale := make([]*parityBlock, 0, 1)
	for _, number := range d.order {
		if int(rtptime.SeqDiff(d.newest, number)) >= d.cfg.WindowBlocks {
			stale = append(stale, d.blocks[number])
		}
	}
	for _, b := range stale {
		logrus.WithFields(logrus.Fields{
			"block":   b.number,
			"have":    b.have,
			"of":      d.cfg.BlockSize,
			"expired": d.expired + 1,
		}).Debug("FEC window expired, flushing incomplete block")
		d.emit(b, true)
	}
}

// Drain returns ready source packets ordered by media timestamp.
func (d *ParityDecoder) Drain() []*packet.Packet {
	if len(d.ready) == 0 {
		return nil
	}
	out := d.ready
	d.ready = nil
	sort.SliceStable(out, func(i, j int) bool {
		return rtptime.Before(out[i].Timestamp, out[j].Timestamp)
	})
	return out
}

// WindowStatus reports window bookkeeping counters.
func (d *ParityDecoder) WindowStatus() WindowStatus {
	return WindowStatus{
		OpenBlocks: len(d.blocks),
		Recovered:  d.recovered,
		Expired:    d.expired,
	}
}

// Close releases every packet still held in the window.
func (d *ParityDecoder) Close() {
	for _, b := range d.blocks {
		for _, src := range b.sources {
			if src != nil {
				src.Release()
			}
		}
		if b.parity != nil {
			b.parity.Release()
		}
	}
	d.blocks = make(map[uint16]*parityBlock)
	d.order = nil
	for _, pkt := range d.ready {
		pkt.Release()
	}
	d.ready = nil
}
