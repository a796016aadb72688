// Package packet defines the packet model shared by the network and
// audio contexts of the receiver.
//
// A Packet is immutable once the session router accepts it. Packets are
// allocated from a bounded, reference-counted Pool so that the network
// goroutines (producers) and the audio goroutine (consumer) can hold the
// same packet without coordinating frees; the last Release returns the
// buffer to the pool. Optional poisoning overwrites released buffers
// with a sentinel byte to make use-after-release visible in tests.
//
// SortedQueue is the per-session, per-kind jitter queue: packets ordered
// by (media timestamp, sequence), exact duplicates dropped, bounded with
// oldest-first eviction on overflow.
package packet
