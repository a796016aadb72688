// Package transport provides the UDP endpoints feeding the receiver.
//
// An endpoint binds a local address, optionally joins a multicast
// group, and runs a receive loop on its own goroutine, handing each
// datagram to an injected dispatch callback together with the sender
// address and receive time. The callback runs on the network goroutine
// and must not block.
package transport
