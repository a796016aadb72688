package audiorx

import (
	"fmt"
	"time"

	"github.com/opd-ai/audiorx/audio"
	"github.com/opd-ai/audiorx/fec"
	"github.com/opd-ai/audiorx/rtp"
	"github.com/opd-ai/audiorx/rtptime"
)

// ClockSource selects how Read paces itself.
type ClockSource uint8

const (
	// ClockInternal makes Read sleep until the frame's deadline,
	// pacing the stream with the CPU clock.
	ClockInternal ClockSource = iota
	// ClockExternal makes Read return immediately; the caller's own
	// clock (for example a sound card) paces the stream.
	ClockExternal
)

// Slot identifies an independently configurable endpoint bundle.
type Slot int

// SlotDefault is the slot used by single-endpoint receivers.
const SlotDefault Slot = 0

// Interface identifies one endpoint within a slot.
type Interface uint8

const (
	// InterfaceConsolidated bundles source, repair and control on one
	// endpoint.
	InterfaceConsolidated Interface = iota
	// InterfaceAudioSource carries media packets.
	InterfaceAudioSource
	// InterfaceAudioRepair carries FEC repair packets.
	InterfaceAudioRepair
	// InterfaceAudioControl carries control-plane packets.
	InterfaceAudioControl
)

// String returns a human-readable interface name.
func (i Interface) String() string {
	switch i {
	case InterfaceConsolidated:
		return "consolidated"
	case InterfaceAudioSource:
		return "audio-source"
	case InterfaceAudioRepair:
		return "audio-repair"
	case InterfaceAudioControl:
		return "audio-control"
	default:
		return "unknown"
	}
}

// PayloadCodec selects the media payload encoding.
type PayloadCodec uint8

const (
	// CodecL16 is raw big-endian 16-bit PCM (RFC 3551).
	CodecL16 PayloadCodec = iota
	// CodecOpus is Opus (RFC 7587), decoded with the pure Go decoder.
	CodecOpus
)

// Config holds receiver configuration. Open fills zero-valued rates,
// latencies, intervals, sizes, limits and payload types from
// DefaultConfig; boolean and enum fields (FEEnable, FEProfile,
// ResamplerProfile, ClockSource, Codec, FECScheme) and
// CaptureTSExtensionID are used as given. Validation happens once in
// Open and an invalid config leaves the receiver permanently unusable.
type Config struct {
	// SampleRate and Channels define the output stream spec.
	SampleRate uint32
	Channels   int

	// SenderSampleRate is the nominal sender rate; zero means equal to
	// SampleRate.
	SenderSampleRate uint32

	// TargetLatency is the setpoint of the latency control loop.
	TargetLatency time.Duration
	// MinLatency and MaxLatency are hard bounds; a session whose queue
	// latency leaves them is torn down. Zero selects -1x / +2x of
	// TargetLatency.
	MinLatency time.Duration
	MaxLatency time.Duration

	// FEEnable runs the rate-adaptation loop.
	FEEnable bool
	// FEProfile selects the controller gains.
	FEProfile audio.FEProfile
	// FEUpdateInterval is the estimator input cadence.
	FEUpdateInterval time.Duration
	// MaxScalingDelta is the clamp half-width around 1.0.
	MaxScalingDelta float64

	// ResamplerProfile is passed to each session's resampler; all
	// profiles use the same linear-interpolation kernel.
	ResamplerProfile audio.ResamplerProfile

	// ClockSource selects internal pacing or external pass-through.
	ClockSource ClockSource

	// MaxFrameSize bounds output frames, in overall samples per Read.
	MaxFrameSize int

	// IdleTimeout evicts sessions with no traffic for this long.
	IdleTimeout time.Duration
	// MaxSessions bounds concurrent sessions; excess senders are
	// dropped at the router.
	MaxSessions int
	// QueueCapacity bounds each per-session packet queue.
	QueueCapacity int

	// Codec selects the payload decoder.
	Codec PayloadCodec
	// PayloadType marks source packets; zero selects the static L16
	// type matching Channels (RFC 3551) or 96 for Opus.
	PayloadType uint8
	// RepairPayloadType marks repair packets.
	RepairPayloadType uint8
	// CaptureTSExtensionID selects the capture-timestamp header
	// extension; zero disables extraction.
	CaptureTSExtensionID uint8

	// FECScheme must match the sender's encoding.
	FECScheme fec.Scheme
	// FECBlockSize is the number of source packets per block.
	FECBlockSize int
	// FECRepairCount is the number of repair packets per block.
	FECRepairCount int
}

// DefaultConfig returns the recommended configuration: 44.1 kHz stereo
// L16, 200 ms target latency, internal clock, rate adaptation on with
// the balanced profile.
func DefaultConfig() Config {
	cfg := Config{
		SampleRate:           44100,
		Channels:             2,
		TargetLatency:        200 * time.Millisecond,
		FEEnable:             true,
		FEProfile:            audio.FEProfileBalanced,
		FEUpdateInterval:     100 * time.Millisecond,
		MaxScalingDelta:      0.005,
		ResamplerProfile:     audio.ResamplerMedium,
		ClockSource:          ClockInternal,
		MaxFrameSize:         8192,
		IdleTimeout:          2 * time.Second,
		MaxSessions:          16,
		QueueCapacity:        256,
		Codec:                CodecL16,
		RepairPayloadType:    109,
		CaptureTSExtensionID: rtp.DefaultCaptureTSExtensionID,
		FECScheme:            fec.SchemeDisable,
	}
	cfg.MinLatency = -cfg.TargetLatency
	cfg.MaxLatency = 2 * cfg.TargetLatency
	return cfg
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = def.Channels
	}
	if c.SenderSampleRate == 0 {
		c.SenderSampleRate = c.SampleRate
	}
	if c.TargetLatency == 0 {
		c.TargetLatency = def.TargetLatency
	}
	if c.MinLatency == 0 && c.MaxLatency == 0 {
		c.MinLatency = -c.TargetLatency
		c.MaxLatency = 2 * c.TargetLatency
	}
	if c.FEUpdateInterval == 0 {
		c.FEUpdateInterval = def.FEUpdateInterval
	}
	if c.MaxScalingDelta == 0 {
		c.MaxScalingDelta = def.MaxScalingDelta
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = def.MaxSessions
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.PayloadType == 0 {
		c.PayloadType = c.defaultPayloadType()
	}
	if c.RepairPayloadType == 0 {
		c.RepairPayloadType = def.RepairPayloadType
	}
	if c.FECScheme != fec.SchemeDisable {
		if c.FECBlockSize == 0 {
			c.FECBlockSize = 8
		}
		if c.FECRepairCount == 0 {
			c.FECRepairCount = 1
		}
	}
	return c
}

func (c Config) defaultPayloadType() uint8 {
	if c.Codec == CodecOpus {
		return 96
	}
	if c.Channels == 1 {
		return 11 // L16 mono
	}
	return 10 // L16 stereo
}

// validate checks internal consistency. Wrapped into ErrInvalidConfig
// by Open.
func (c Config) validate() error {
	if _, err := rtptime.NewSampleSpec(c.SampleRate, c.Channels); err != nil {
		return err
	}
	if _, err := rtptime.NewSampleSpec(c.SenderSampleRate, c.Channels); err != nil {
		return err
	}
	if c.TargetLatency <= 0 {
		return fmt.Errorf("target latency must be positive: %v", c.TargetLatency)
	}
	if c.TargetLatency < c.MinLatency || c.TargetLatency > c.MaxLatency {
		return fmt.Errorf("target latency %v outside bounds [%v, %v]",
			c.TargetLatency, c.MinLatency, c.MaxLatency)
	}
	if c.FEEnable {
		if c.FEUpdateInterval <= 0 {
			return fmt.Errorf("fe update interval must be positive: %v", c.FEUpdateInterval)
		}
		if c.MaxScalingDelta <= 0 || c.MaxScalingDelta >= 0.5 {
			return fmt.Errorf("max scaling delta out of range: %f", c.MaxScalingDelta)
		}
	}
	if c.Codec == CodecOpus && c.SenderSampleRate != 48000 {
		return fmt.Errorf("opus requires a 48000 Hz sender rate, got %d", c.SenderSampleRate)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max sessions must be at least 1: %d", c.MaxSessions)
	}
	if c.MaxFrameSize < c.Channels {
		return fmt.Errorf("max frame size too small: %d", c.MaxFrameSize)
	}
	if c.FECScheme != fec.SchemeDisable && c.FECBlockSize < 2 {
		return fmt.Errorf("fec block size too small: %d", c.FECBlockSize)
	}
	return nil
}

// outputSpec returns the receiver-side sample spec.
func (c Config) outputSpec() rtptime.SampleSpec {
	return rtptime.SampleSpec{SampleRate: c.SampleRate, Channels: c.Channels}
}

// senderSpec returns the sender-side sample spec.
func (c Config) senderSpec() rtptime.SampleSpec {
	return rtptime.SampleSpec{SampleRate: c.SenderSampleRate, Channels: c.Channels}
}
