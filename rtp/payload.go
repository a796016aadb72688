package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// PayloadDecoder converts packet payload bytes into interleaved PCM.
//
// SampleCount must be a pure function of the payload: the parser uses it
// to stamp packet durations before any decoding happens.
type PayloadDecoder interface {
	// SampleCount returns the payload length in per-channel samples.
	SampleCount(payload []byte) uint32
	// Decode returns the payload as interleaved int16 PCM.
	Decode(payload []byte) ([]int16, error)
}

// L16Decoder decodes raw L16 payloads: big-endian signed 16-bit PCM,
// interleaved (RFC 3551).
type L16Decoder struct {
	channels int
}

// NewL16Decoder creates an L16 decoder for the given channel count.
func NewL16Decoder(channels int) (*L16Decoder, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", channels)
	}
	return &L16Decoder{channels: channels}, nil
}

// SampleCount returns the per-channel sample count of an L16 payload.
func (d *L16Decoder) SampleCount(payload []byte) uint32 {
	return uint32(len(payload) / 2 / d.channels)
}

// Decode converts an L16 payload to interleaved PCM samples.
func (d *L16Decoder) Decode(payload []byte) ([]int16, error) {
	if len(payload)%(2*d.channels) != 0 {
		return nil, fmt.Errorf("L16 payload not aligned: %d bytes, %d channels", len(payload), d.channels)
	}
	pcm := make([]int16, len(payload)/2)
	for i := range pcm {
		pcm[i] = int16(binary.BigEndian.Uint16(payload[i*2:]))
	}
	return pcm, nil
}

// OpusDecoder decodes Opus payloads using the pion/opus pure Go decoder.
//
// Opus always runs at a 48 kHz clock; sessions carrying Opus must use a
// 48000 Hz sender spec.
type OpusDecoder struct {
	decoder  opus.Decoder
	channels int
	out      []byte
}

// NewOpusDecoder creates an Opus payload decoder.
func NewOpusDecoder(channels int) (*OpusDecoder, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", channels)
	}

	logrus.WithFields(logrus.Fields{
		"channels": channels,
	}).Debug("creating Opus payload decoder")

	return &OpusDecoder{
		decoder:  opus.NewDecoder(),
		channels: channels,
		// 120 ms at 48 kHz stereo is the largest possible Opus frame.
		out: make([]byte, 5760*2*2),
	}, nil
}

// SampleCount derives the frame duration from the Opus TOC byte
// (RFC 6716 section 3.1) without decoding.
func (d *OpusDecoder) SampleCount(payload []byte) uint32 {
	if len(payload) == 0 {
		return 0
	}
	toc := payload[0]
	config := toc >> 3

	// Frame sizes per configuration, in samples at 48 kHz.
	var frame uint32
	switch {
	case config < 12: // SILK modes: 10, 20, 40, 60 ms
		frame = []uint32{480, 960, 1920, 2880}[config&0x3]
	case config < 16: // Hybrid modes: 10, 20 ms
		frame = []uint32{480, 960}[config&0x1]
	default: // CELT modes: 2.5, 5, 10, 20 ms
		frame = []uint32{120, 240, 480, 960}[config&0x3]
	}

	switch toc & 0x3 {
	case 0:
		return frame
	case 1, 2:
		return frame * 2
	default:
		if len(payload) < 2 {
			return frame
		}
		return frame * uint32(payload[1]&0x3F)
	}
}

// Decode converts an Opus payload to interleaved PCM samples.
func (d *OpusDecoder) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty Opus payload")
	}

	_, isStereo, err := d.decoder.Decode(payload, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	decodedChans := 1
	if isStereo {
		decodedChans = 2
	}
	frames := int(d.SampleCount(payload))

	pcm := make([]int16, frames*d.channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.channels; ch++ {
			src := i * decodedChans
			if ch < decodedChans {
				src += ch
			}
			pcm[i*d.channels+ch] = int16(binary.LittleEndian.Uint16(d.out[src*2:]))
		}
	}
	return pcm, nil
}
