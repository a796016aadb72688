package audio

import "time"

// TimeProvider abstracts the wall clock for deterministic testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns time.Now().
func (RealTimeProvider) Now() time.Time { return time.Now() }
