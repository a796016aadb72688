package packet

import "errors"

// Sentinel errors for packet pool and queue operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrPoolExhausted indicates the pool has no free buffers.
	ErrPoolExhausted = errors.New("packet pool exhausted")

	// ErrQueueClosed indicates the owning session destroyed the queue.
	ErrQueueClosed = errors.New("packet queue closed")

	// ErrPayloadTooLarge indicates a payload exceeds the pool buffer size.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum packet size")
)
