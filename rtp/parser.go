package rtp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// DefaultCaptureTSExtensionID is the default header extension id
// carrying the sender capture timestamp.
const DefaultCaptureTSExtensionID = 1

// ParserConfig configures wire-to-packet conversion.
type ParserConfig struct {
	// SourcePayloadType marks media packets.
	SourcePayloadType uint8
	// RepairPayloadType marks FEC repair packets; zero disables the
	// repair stream.
	RepairPayloadType uint8
	// CaptureTSExtensionID selects the header extension holding the
	// sender capture timestamp; zero disables extraction.
	CaptureTSExtensionID uint8
	// SampleDuration computes the payload duration in per-channel
	// samples for a source payload.
	SampleDuration func(payload []byte) uint32
	// FECBlockSize is the number of source packets per FEC block; zero
	// when FEC is disabled.
	FECBlockSize int
}

// Parser converts raw RTP datagrams into pool-backed packets.
type Parser struct {
	cfg  ParserConfig
	pool *packet.Pool
}

// NewParser creates a parser allocating from pool.
func NewParser(cfg ParserConfig, pool *packet.Pool) (*Parser, error) {
	if pool == nil {
		return nil, fmt.Errorf("packet pool cannot be nil")
	}
	if cfg.SampleDuration == nil {
		return nil, fmt.Errorf("sample duration function cannot be nil")
	}
	return &Parser{cfg: cfg, pool: pool}, nil
}

// Parse unmarshals one RTP datagram received from addr.
//
// The returned packet carries one reference owned by the caller.
// Datagrams with unknown payload types are rejected.
func (p *Parser) Parse(data []byte, addr net.Addr) (*packet.Packet, error) {
	var rp rtp.Packet
	if err := rp.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	var kind packet.Kind
	switch rp.PayloadType {
	case p.cfg.SourcePayloadType:
		kind = packet.KindSource
	case p.cfg.RepairPayloadType:
		if p.cfg.RepairPayloadType == 0 {
			return nil, fmt.Errorf("unknown payload type: %d", rp.PayloadType)
		}
		kind = packet.KindRepair
	default:
		return nil, fmt.Errorf("unknown payload type: %d", rp.PayloadType)
	}

	pkt, err := p.pool.Acquire(rp.Payload)
	if err != nil {
		return nil, err
	}

	pkt.Source = addr
	pkt.SourceKey = addr.String()
	pkt.Kind = kind
	pkt.Seq = rp.SequenceNumber
	pkt.Timestamp = rtptime.MediaTS(rp.Timestamp)

	if kind == packet.KindSource {
		pkt.Duration = p.cfg.SampleDuration(pkt.Payload)
	}

	if p.cfg.FECBlockSize > 0 {
		pkt.BlockSize = p.cfg.FECBlockSize
		pkt.BlockIndex = int(rp.SequenceNumber) % p.cfg.FECBlockSize
	}

	if p.cfg.CaptureTSExtensionID != 0 && rp.Header.Extension {
		if ext := rp.Header.GetExtension(p.cfg.CaptureTSExtensionID); len(ext) >= 8 {
			ns := int64(binary.BigEndian.Uint64(ext))
			if ns > 0 {
				pkt.CaptureTime = time.Unix(0, ns)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"source":    pkt.SourceKey,
		"kind":      pkt.Kind.String(),
		"seq":       pkt.Seq,
		"timestamp": uint32(pkt.Timestamp),
		"payload":   len(pkt.Payload),
	}).Trace("parsed RTP packet")

	return pkt, nil
}
