package market

import (
	"sync"
	"time"
)

// rateLimiter is a rolling-window request counter. Allow never blocks: when
// the window is full the caller is expected to report unavailable and let
// the gateway fall through to the next provider.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	nowFn  func() time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:    maxRequests,
		window: window,
		nowFn:  time.Now,
	}
}

// Allow records a request if the rolling window has room and reports
// whether the caller may proceed. A non-positive max disables limiting.
func (r *rateLimiter) Allow() bool {
	if r == nil || r.max <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	cutoff := now.Add(-r.window)
	kept := r.stamps[:0]
	for _, ts := range r.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.stamps = kept
	if len(r.stamps) >= r.max {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}
