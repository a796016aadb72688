package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// timeAt parses an RFC 3339 timestamp for test fixtures.
func timeAt(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// fakeClock is a TimeProvider advanced manually by tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock(t *testing.T) *fakeClock {
	return &fakeClock{now: timeAt(t, "2026-08-06T12:00:00Z")}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// constReader fills every frame with a constant sample value.
type constReader struct {
	value   int16
	capture time.Time
}

func (r *constReader) ReadFrame(dst *Frame) error {
	for i := range dst.Samples {
		dst.Samples[i] = r.value
	}
	dst.Capture = r.capture
	return nil
}

// rampReader produces an endless ramp: sample n has value n (mod 30000).
type rampReader struct {
	next int
}

func (r *rampReader) ReadFrame(dst *Frame) error {
	for i := range dst.Samples {
		dst.Samples[i] = int16(r.next % 30000)
		r.next++
	}
	dst.Capture = time.Time{}
	return nil
}
