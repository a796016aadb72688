// Package audio implements the per-session audio pipeline of the
// receiver and the mixer that joins sessions into one output stream.
//
// The pipeline is synchronous pull. For every output frame the mixer
// reads each session's top reader, which cascades down:
//
//	mixer → latency monitor → resampler → depacketizer → packet reader
//
// The depacketizer turns the ordered packet stream into contiguous PCM
// at the sender's nominal rate, synthesizing silence for gaps. The
// resampler converts it to the receiver rate with a runtime-retunable
// ratio. The latency monitor watches the queue depth, drives the
// frequency estimator, and feeds the resulting scaling coefficient back
// into the resampler, pulling the observed latency toward its target.
//
// Nothing in this package blocks: a missing packet is a gap, not a
// wait. The only suspension point of the receiver lives in the output
// clock, outside this package.
package audio
