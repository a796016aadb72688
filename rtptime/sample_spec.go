package rtptime

import (
	"fmt"
	"time"
)

// SampleSpec describes a PCM stream: sample rate in Hz and number of
// interleaved channels.
type SampleSpec struct {
	SampleRate uint32
	Channels   int
}

// NewSampleSpec creates a validated sample spec.
//
// Returns an error if the rate is zero or the channel count is not
// 1 (mono) or 2 (stereo).
func NewSampleSpec(sampleRate uint32, channels int) (SampleSpec, error) {
	spec := SampleSpec{SampleRate: sampleRate, Channels: channels}
	if err := spec.Validate(); err != nil {
		return SampleSpec{}, err
	}
	return spec, nil
}

// Validate checks that the spec is usable.
func (s SampleSpec) Validate() error {
	if s.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate: %d", s.SampleRate)
	}
	if s.Channels < 1 || s.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", s.Channels)
	}
	return nil
}

// NsToSamples converts a wall-clock duration to a per-channel sample
// count, rounding to the nearest sample.
func (s SampleSpec) NsToSamples(d time.Duration) int64 {
	if d >= 0 {
		return (d.Nanoseconds()*int64(s.SampleRate) + int64(time.Second)/2) / int64(time.Second)
	}
	return -((-d.Nanoseconds()*int64(s.SampleRate) + int64(time.Second)/2) / int64(time.Second))
}

// SamplesToNs converts a per-channel sample count to a wall-clock
// duration.
func (s SampleSpec) SamplesToNs(samples int64) time.Duration {
	return time.Duration(samples * int64(time.Second) / int64(s.SampleRate))
}

// NsToMediaTS converts a wall-clock duration to a media timestamp
// distance. The duration must be non-negative.
func (s SampleSpec) NsToMediaTS(d time.Duration) MediaTS {
	return MediaTS(s.NsToSamples(d))
}

// MediaTSToNs converts a signed media timestamp distance to a wall-clock
// duration.
func (s SampleSpec) MediaTSToNs(diff int32) time.Duration {
	return s.SamplesToNs(int64(diff))
}

// FrameSamples returns the overall sample count (all channels) for the
// given per-channel count.
func (s SampleSpec) FrameSamples(perChan int) int {
	return perChan * s.Channels
}

// String returns a compact textual form, e.g. "48000Hz/2ch".
func (s SampleSpec) String() string {
	return fmt.Sprintf("%dHz/%dch", s.SampleRate, s.Channels)
}
