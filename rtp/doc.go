// Package rtp converts RTP datagrams into the receiver's packet model.
//
// Parsing uses the pion/rtp library for standards-compliant header
// handling. Source and repair streams are discriminated by configured
// payload types. A sender may attach its capture wall clock as a header
// extension; when present it is extracted into Packet.CaptureTime and
// later drives end-to-end latency measurement.
//
// The package also provides the payload decoders used by the
// depacketizer: raw L16 PCM (RFC 3551) and Opus via pion/opus.
package rtp
