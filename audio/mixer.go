package audio

import "github.com/sirupsen/logrus"

// Mixer sums a set of per-session frame readers into one output frame.
//
// Summation saturates in int16 PCM space and is commutative, so the
// mixing order across sessions does not affect the output. A reader
// that fails contributes silence and is reported back to the caller,
// which marks the session for teardown.
type Mixer struct {
	tmp Frame
}

// NewMixer creates a mixer for frames of numSamples overall samples.
func NewMixer(numSamples int) *Mixer {
	return &Mixer{tmp: Frame{Samples: make([]int16, numSamples)}}
}

// Mix reads every reader and sums the results into dst. dst is cleared
// first, so zero readers produce a frame of silence. The returned slice
// holds the indexes of readers that failed.
func (m *Mixer) Mix(dst *Frame, readers []FrameReader) []int {
	dst.Clear()
	if len(m.tmp.Samples) != len(dst.Samples) {
		m.tmp.Samples = make([]int16, len(dst.Samples))
	}

	var failed []int
	for i, reader := range readers {
		if err := reader.ReadFrame(&m.tmp); err != nil {
			logrus.WithFields(logrus.Fields{
				"reader": i,
				"error":  err.Error(),
			}).Debug("session read failed, mixing silence")
			failed = append(failed, i)
			continue
		}

		for j := range dst.Samples {
			dst.Samples[j] = saturatingAdd(dst.Samples[j], m.tmp.Samples[j])
		}
		if dst.Capture.IsZero() && !m.tmp.Capture.IsZero() {
			dst.Capture = m.tmp.Capture
		}
	}
	return failed
}
