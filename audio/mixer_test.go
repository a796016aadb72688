package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) ReadFrame(*Frame) error { return errors.New("boom") }

func TestMixerNoReaders(t *testing.T) {
	m := NewMixer(480)
	frame := NewFrame(480)
	frame.Samples[7] = 123

	failed := m.Mix(frame, nil)

	assert.Empty(t, failed)
	assert.Equal(t, make([]int16, 480), frame.Samples, "no sessions still yields a full silent frame")
}

func TestMixerSumsReaders(t *testing.T) {
	m := NewMixer(4)
	frame := NewFrame(4)

	failed := m.Mix(frame, []FrameReader{
		&constReader{value: 100},
		&constReader{value: 23},
	})

	assert.Empty(t, failed)
	assert.Equal(t, []int16{123, 123, 123, 123}, frame.Samples)
}

func TestMixerSaturates(t *testing.T) {
	m := NewMixer(2)
	frame := NewFrame(2)

	m.Mix(frame, []FrameReader{
		&constReader{value: 30000},
		&constReader{value: 30000},
	})
	assert.Equal(t, []int16{32767, 32767}, frame.Samples)

	m.Mix(frame, []FrameReader{
		&constReader{value: -30000},
		&constReader{value: -30000},
	})
	assert.Equal(t, []int16{-32768, -32768}, frame.Samples)
}

func TestMixerFailedReaderIsSilent(t *testing.T) {
	m := NewMixer(4)
	frame := NewFrame(4)

	failed := m.Mix(frame, []FrameReader{
		&constReader{value: 11},
		failingReader{},
		&constReader{value: 31},
	})

	require.Equal(t, []int{1}, failed)
	assert.Equal(t, []int16{42, 42, 42, 42}, frame.Samples)
}

func TestMixerOrderIndependence(t *testing.T) {
	readers := []FrameReader{
		&constReader{value: 5},
		&constReader{value: -3},
		&constReader{value: 11},
	}
	reversed := []FrameReader{readers[2], readers[1], readers[0]}

	m := NewMixer(8)
	a, b := NewFrame(8), NewFrame(8)
	m.Mix(a, readers)
	m.Mix(b, reversed)

	assert.Equal(t, a.Samples, b.Samples)
}

func TestMixerPropagatesCapture(t *testing.T) {
	capture := timeAt(t, "2026-08-06T12:00:00Z")
	m := NewMixer(4)
	frame := NewFrame(4)

	m.Mix(frame, []FrameReader{
		&constReader{value: 1},
		&constReader{value: 2, capture: capture},
	})
	assert.Equal(t, capture, frame.Capture)
}
