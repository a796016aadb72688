package audio

import "time"

// reportInterval caps how often a latency monitor emits its diagnostic
// record.
const reportInterval = 5 * time.Second

// rateLimiter allows one event per interval, a single-token bucket.
type rateLimiter struct {
	interval time.Duration
	tp       TimeProvider
	last     time.Time
}

func newRateLimiter(interval time.Duration, tp TimeProvider) *rateLimiter {
	return &rateLimiter{interval: interval, tp: tp}
}

// allow consumes the token when available.
func (r *rateLimiter) allow() bool {
	now := r.tp.Now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
