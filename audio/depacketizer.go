package audio

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/packet"
	"github.com/opd-ai/audiorx/rtptime"
)

// PayloadDecoder converts packet payload bytes into interleaved PCM.
// The rtp package provides L16 and Opus implementations.
type PayloadDecoder interface {
	Decode(payload []byte) ([]int16, error)
}

// DepacketizerConfig configures stream reconstruction.
type DepacketizerConfig struct {
	// Spec is the sender sample spec; timestamps advance at this rate.
	Spec rtptime.SampleSpec
	// MaxGap is the largest forward jump, in per-channel samples, the
	// depacketizer accepts before declaring the stream broken. Zero
	// disables the check.
	MaxGap int32
}

type depacketizerState uint8

const (
	stateUnstarted depacketizerState = iota
	stateRunning
	stateBroken
)

// Depacketizer reconstructs a contiguous PCM stream at the sender rate
// from an ordered packet stream.
//
// Holes in the stream are filled with silence and never block a read;
// output media timestamps are strictly increasing. The depacketizer is
// driven from the audio context only.
type Depacketizer struct {
	reader  packet.Reader
	decoder PayloadDecoder
	cfg     DepacketizerConfig

	state  depacketizerState
	nextTS rtptime.MediaTS

	cur    *packet.Packet
	curPCM []int16
	curOff int // per-channel offset consumed from curPCM

	lateDrops    uint64
	decodeErrors uint64
	silenceRuns  uint64
}

// NewDepacketizer creates a depacketizer pulling packets from reader
// and decoding payloads with decoder.
func NewDepacketizer(reader packet.Reader, decoder PayloadDecoder, cfg DepacketizerConfig) *Depacketizer {
	return &Depacketizer{
		reader:  reader,
		decoder: decoder,
		cfg:     cfg,
	}
}

// Started reports whether the first packet has aligned the stream.
func (d *Depacketizer) Started() bool {
	return d.state != stateUnstarted
}

// NextTimestamp returns the media timestamp the next output sample will
// carry. Meaningless before Started.
func (d *Depacketizer) NextTimestamp() rtptime.MediaTS {
	return d.nextTS
}

// ReadFrame fills dst with the next slot of PCM at the sender rate.
//
// Before the first packet arrives the whole slot is silence and the
// stream position does not advance. After a desync the depacketizer is
// broken and every read fails with ErrDesync.
func (d *Depacketizer) ReadFrame(dst *Frame) error {
	if d.state == stateBroken {
		return ErrDesync
	}

	dst.Clear()
	channels := d.cfg.Spec.Channels
	slot := len(dst.Samples) / channels

	pos := 0
	for pos < slot {
		if err := d.ensurePacket(); err != nil {
			return err
		}

		if d.cur == nil {
			// Nothing buffered: the rest of the slot is a gap.
			if d.state == stateUnstarted {
				return nil
			}
			d.nextTS += rtptime.MediaTS(slot - pos)
			d.silenceRuns++
			return nil
		}

		gap := rtptime.Diff(d.cur.Timestamp, d.nextTS)
		if gap > 0 {
			// Hole before the buffered packet: zero-fill, never wait.
			n := int(gap)
			if n > slot-pos {
				n = slot - pos
			}
			pos += n
			d.nextTS += rtptime.MediaTS(n)
			continue
		}

		if d.curPCM == nil {
			if !d.decodeCurrent() {
				continue
			}
		}

		n := len(d.curPCM)/channels - d.curOff
		if n > slot-pos {
			n = slot - pos
		}
		if dst.Capture.IsZero() && !d.cur.CaptureTime.IsZero() {
			offset := d.cfg.Spec.SamplesToNs(int64(d.curOff))
			dst.Capture = d.cur.CaptureTime.Add(offset)
		}
		copy(dst.Samples[pos*channels:], d.curPCM[d.curOff*channels:(d.curOff+n)*channels])
		pos += n
		d.curOff += n
		d.nextTS += rtptime.MediaTS(n)

		if d.curOff >= len(d.curPCM)/channels {
			d.dropCurrent()
		}
	}
	return nil
}

// ensurePacket pulls packets until one overlapping or ahead of nextTS
// is buffered, dropping late ones. On the first packet it aligns the
// stream start.
func (d *Depacketizer) ensurePacket() error {
	for d.cur == nil {
		pkt, err := d.reader.ReadPacket()
		if err != nil {
			return err
		}
		if pkt == nil {
			return nil
		}

		if d.state == stateUnstarted {
			d.nextTS = pkt.Timestamp
			d.state = stateRunning
			logrus.WithFields(logrus.Fields{
				"source":    pkt.SourceKey,
				"timestamp": uint32(pkt.Timestamp),
			}).Debug("depacketizer started")
		}

		if rtptime.Diff(pkt.End(), d.nextTS) <= 0 {
			// Entirely in the past.
			d.lateDrops++
			pkt.Release()
			continue
		}

		if d.cfg.MaxGap > 0 && rtptime.Diff(pkt.Timestamp, d.nextTS) > d.cfg.MaxGap {
			d.state = stateBroken
			logrus.WithFields(logrus.Fields{
				"next_ts": uint32(d.nextTS),
				"pkt_ts":  uint32(pkt.Timestamp),
				"max_gap": d.cfg.MaxGap,
			}).Warn("depacketizer desynchronized")
			pkt.Release()
			return ErrDesync
		}

		d.cur = pkt
		d.curPCM = nil
		d.curOff = 0
	}
	return nil
}

// decodeCurrent decodes the buffered packet's payload, positioning the
// cursor at nextTS. A decode failure discards the packet; the range it
// covered becomes silence.
func (d *Depacketizer) decodeCurrent() bool {
	pcm, err := d.decoder.Decode(d.cur.Payload)
	if err != nil {
		d.decodeErrors++
		logrus.WithFields(logrus.Fields{
			"source": d.cur.SourceKey,
			"seq":    d.cur.Seq,
			"error":  err.Error(),
		}).Warn("payload decode failed, dropping packet")
		d.dropCurrent()
		return false
	}

	d.curPCM = pcm
	// The packet may begin before nextTS when a previous slot consumed
	// part of it or it arrived partially late.
	if behind := rtptime.Diff(d.nextTS, d.cur.Timestamp); behind > 0 {
		d.curOff = int(behind)
	} else {
		d.curOff = 0
	}
	if d.curOff >= len(pcm)/d.cfg.Spec.Channels {
		d.dropCurrent()
		return false
	}
	return true
}

func (d *Depacketizer) dropCurrent() {
	if d.cur != nil {
		d.cur.Release()
		d.cur = nil
	}
	d.curPCM = nil
	d.curOff = 0
}

// Close releases the buffered packet.
func (d *Depacketizer) Close() {
	d.dropCurrent()
}
