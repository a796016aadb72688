// Package rtptime provides sample-rate aware time arithmetic for the
// receive pipeline.
//
// Media timestamps are sample counters carried on the wire in sender
// sample units. They are 32-bit and wrap; all comparisons and distance
// calculations must go through the wrap-safe helpers in this package.
// Raw subtraction of two media timestamps is never correct outside of it.
//
// SampleSpec describes a PCM stream (rate and channel count) and converts
// between wall-clock durations, per-channel sample counts, and media
// timestamps.
package rtptime
