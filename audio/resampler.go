package audio

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiorx/rtptime"
)

// Tolerated scaling range of the resampler engine. The latency monitor
// clamps far tighter; these bounds only reject misconfiguration.
const (
	MinScaling = 0.5
	MaxScaling = 2.0
)

// ResamplerProfile names an interpolation quality / CPU trade-off.
//
// The profile is recorded and logged, but every profile currently runs
// the same linear-interpolation kernel; output does not differ between
// profiles.
type ResamplerProfile uint8

const (
	// ResamplerFast names the fastest profile.
	ResamplerFast ResamplerProfile = iota
	// ResamplerMedium is the default profile.
	ResamplerMedium
	// ResamplerHigh names the highest-quality profile.
	ResamplerHigh
)

// ResamplerConfig configures a Resampler.
type ResamplerConfig struct {
	// InputSpec is the sender sample spec.
	InputSpec rtptime.SampleSpec
	// OutputSpec is the receiver sample spec; channel counts must match.
	OutputSpec rtptime.SampleSpec
	// Profile is recorded for diagnostics; it does not change the
	// linear-interpolation kernel.
	Profile ResamplerProfile
	// SlotSamples is the per-channel size of upstream reads; zero
	// selects 10 ms of input.
	SlotSamples int
}

// Resampler is a PCM reader sitting atop the depacketizer, converting
// the sender rate to the receiver rate with a retunable ratio.
//
// The base ratio inRate/outRate is multiplied by the scaling
// coefficient set by the latency monitor: values above 1.0 consume the
// sender stream faster, draining queued latency, values below slow it
// down. After a successful SetScaling the next read uses the new ratio;
// the fractional read position carries over, so the transient is
// bounded by one interpolation step.
type Resampler struct {
	upstream FrameReader
	cfg      ResamplerConfig

	scaling float64
	step    float64

	buf []int16 // interleaved window of upstream samples
	pos float64 // fractional read position in per-channel frames

	in Frame // upstream scratch
}

// NewResampler creates a resampler reading sender-rate PCM from
// upstream.
func NewResampler(upstream FrameReader, cfg ResamplerConfig) (*Resampler, error) {
	if err := cfg.InputSpec.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.OutputSpec.Validate(); err != nil {
		return nil, err
	}
	if cfg.InputSpec.Channels != cfg.OutputSpec.Channels {
		return nil, ErrScalingOutOfRange
	}

	r := &Resampler{
		upstream: upstream,
		cfg:      cfg,
		scaling:  1.0,
	}
	r.retune()

	logrus.WithFields(logrus.Fields{
		"input":   cfg.InputSpec.String(),
		"output":  cfg.OutputSpec.String(),
		"profile": cfg.Profile,
	}).Debug("resampler created")

	return r, nil
}

// Scaling returns the current scaling coefficient.
func (r *Resampler) Scaling() float64 {
	return r.scaling
}

// SetScaling retunes the conversion ratio. Fails with
// ErrScalingOutOfRange when the coefficient is outside the engine's
// tolerated range; the previous ratio stays in effect.
func (r *Resampler) SetScaling(scaling float64) error {
	if scaling < MinScaling || scaling > MaxScaling {
		return ErrScalingOutOfRange
	}
	r.scaling = scaling
	r.retune()
	return nil
}

func (r *Resampler) retune() {
	r.step = float64(r.cfg.InputSpec.SampleRate) / float64(r.cfg.OutputSpec.SampleRate) * r.scaling
}

// ReadFrame fills dst with receiver-rate PCM pulled from upstream.
//
// The capture timestamp of the first upstream slot contributing to dst
// is propagated for end-to-end latency measurement.
func (r *Resampler) ReadFrame(dst *Frame) error {
	dst.Capture = time.Time{}
	channels := r.cfg.InputSpec.Channels
	outFrames := len(dst.Samples) / channels

	for n := 0; n < outFrames; n++ {
		idx := int(r.pos)
		frac := r.pos - float64(idx)

		// The interpolation window needs frames idx and idx+1.
		for idx+1 >= len(r.buf)/channels {
			if err := r.pull(dst); err != nil {
				return err
			}
		}

		for ch := 0; ch < channels; ch++ {
			s0 := float64(r.buf[idx*channels+ch])
			s1 := float64(r.buf[(idx+1)*channels+ch])
			dst.Samples[n*channels+ch] = int16(s0*(1.0-frac) + s1*frac)
		}
		r.pos += r.step
	}

	r.compact()
	return nil
}

// pull reads one upstream slot and appends it to the window.
func (r *Resampler) pull(dst *Frame) error {
	slot := r.cfg.SlotSamples
	if slot <= 0 {
		slot = int(r.cfg.InputSpec.SampleRate / 100) // 10 ms
	}
	channels := r.cfg.InputSpec.Channels

	if len(r.in.Samples) != slot*channels {
		r.in.Samples = make([]int16, slot*channels)
	}
	if err := r.upstream.ReadFrame(&r.in); err != nil {
		return err
	}
	if dst.Capture.IsZero() && !r.in.Capture.IsZero() {
		dst.Capture = r.in.Capture
	}
	r.buf = append(r.buf, r.in.Samples...)
	return nil
}

// compact discards fully consumed window frames, keeping one frame of
// history for the next interpolation step.
func (r *Resampler) compact() {
	channels := r.cfg.InputSpec.Channels
	keepFrom := int(r.pos) - 1
	if keepFrom <= 0 {
		return
	}
	copy(r.buf, r.buf[keepFrom*channels:])
	r.buf = r.buf[:len(r.buf)-keepFrom*channels]
	r.pos -= float64(keepFrom)
}
