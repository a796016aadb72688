package audio

import "errors"

// Sentinel errors for pipeline components.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrDesync indicates the depacketizer fell unrecoverably behind
	// the packet stream; the session must be rebuilt.
	ErrDesync = errors.New("depacketizer desynchronized from stream")

	// ErrLatencyOutOfBounds indicates the measured latency violated
	// the configured bounds; the session must be rebuilt.
	ErrLatencyOutOfBounds = errors.New("latency out of bounds")

	// ErrScalingOutOfRange indicates a scaling coefficient outside the
	// resampler's tolerated range.
	ErrScalingOutOfRange = errors.New("scaling coefficient out of range")
)
