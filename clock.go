package audiorx

import "time"

// TimeProvider abstracts the wall clock and sleeping for deterministic
// testing.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep blocks for the given duration.
	Sleep(d time.Duration)
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns time.Now().
func (RealTimeProvider) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (RealTimeProvider) Sleep(d time.Duration) { time.Sleep(d) }

// outputClock paces Read calls.
//
// In internal mode each frame has a deadline one frame duration after
// the previous one, and gate sleeps until it; the pipeline then runs at
// the nominal sample rate against the CPU clock. In external mode gate
// is a no-op and the caller's clock paces the stream.
type outputClock struct {
	source   ClockSource
	tp       TimeProvider
	deadline time.Time
}

func newOutputClock(source ClockSource, tp TimeProvider) *outputClock {
	return &outputClock{source: source, tp: tp}
}

// gate blocks until the next frame deadline. This is the only
// suspension point of the audio context.
func (c *outputClock) gate(frameDuration time.Duration) {
	if c.source == ClockExternal {
		return
	}
	now := c.tp.Now()
	if c.deadline.IsZero() {
		c.deadline = now
	}
	c.deadline = c.deadline.Add(frameDuration)
	if wait := c.deadline.Sub(now); wait > 0 {
		c.tp.Sleep(wait)
	} else if wait < -10*frameDuration {
		// Far behind schedule (e.g. the caller paused): resynchronize
		// instead of spinning through the backlog.
		c.deadline = now
	}
}
