package audiorx

import "errors"

// Sentinel errors surfaced by the public receiver API.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrInvalidConfig indicates the configuration failed validation;
	// the receiver is unusable.
	ErrInvalidConfig = errors.New("invalid receiver configuration")

	// ErrInvalidArgument indicates a malformed argument to an API call.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAllocationFailed indicates pool exhaustion while building a
	// session. No receiver operation currently returns it: session
	// creation does not allocate from the packet pool, and an exhausted
	// pool at parse time drops the datagram.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrAddressInUse indicates the requested local endpoint is taken.
	ErrAddressInUse = errors.New("address already in use")

	// ErrClosed indicates use of a receiver or context after Close.
	ErrClosed = errors.New("receiver is closed")
)

// errSessionLimit is the internal drop reason when the session cap is
// reached; never surfaced through Read.
var errSessionLimit = errors.New("session limit reached")
