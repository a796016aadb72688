// Package fec recovers lost source packets from repair packets.
//
// The receive pipeline treats FEC as a pluggable codec behind the
// Decoder interface: source and repair packets are submitted as they
// are popped from the per-session queues, and recovered-plus-received
// source packets are drained in media-timestamp order.
//
// A BlockReader adapts a Decoder to the packet reader interface the
// depacketizer pulls from. Blocks that stay incomplete once the stream
// has moved past the bounded window are flushed: whatever source
// arrived is emitted and the rest of the block becomes a gap, which the
// depacketizer fills with silence. FEC failure is therefore never fatal.
//
// The built-in SingleParity scheme XORs all source payloads of a block
// into one repair packet and can reconstruct exactly one missing source
// packet per block, bitwise. Heavier schemes (Reed-Solomon, LDPC) plug
// in through the same interface and must match the sender's encoding.
package fec
