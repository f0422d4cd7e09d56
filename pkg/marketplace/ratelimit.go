package marketplace

import (
	"sync"
	"time"
)

const (
	rateLimitGrowthFactor = 2
	rateLimitCeilFactor   = 10
	rateLimitDecaySteps   = 10
)

// RateLimiter enforces a minimum delay between outbound marketplace calls
// and adapts that delay to the response codes the server sends back. One
// instance is shared by all download workers; the last-call timestamp is
// the only cross-worker state and stays behind the mutex.
type RateLimiter struct {
	mu sync.Mutex

	base      time.Duration
	max       time.Duration
	delay     time.Duration
	lastCall  time.Time
	successes int
}

func NewRateLimiter(delay time.Duration) *RateLimiter {
	if delay <= 0 {
		delay = time.Second
	}
	return &RateLimiter{
		base:  delay,
		max:   delay * rateLimitCeilFactor,
		delay: delay,
	}
}

// WaitIfNeeded blocks until at least the current delay has passed since the
// last permitted call. Callers serialize here, so concurrent workers are
// spaced out one delay apart.
func (r *RateLimiter) WaitIfNeeded() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastCall.IsZero() {
		if elapsed := time.Since(r.lastCall); elapsed < r.delay {
			time.Sleep(r.delay - elapsed)
		}
	}
	r.lastCall = time.Now()
}

// AdaptiveDelay adjusts the delay based on an observed response code:
// back off multiplicatively on 429/5xx, decay back toward the configured
// floor after a sustained run of successes.
func (r *RateLimiter) AdaptiveDelay(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case statusCode == 429 || statusCode >= 500:
		r.successes = 0
		r.delay *= rateLimitGrowthFactor
		if r.delay > r.max {
			r.delay = r.max
		}
	case statusCode >= 200 && statusCode < 300:
		r.successes++
		if r.successes >= rateLimitDecaySteps && r.delay > r.base {
			r.successes = 0
			r.delay = r.delay * 9 / 10
			if r.delay < r.base {
				r.delay = r.base
			}
		}
	}
}

// CurrentDelay reports the delay currently in force.
func (r *RateLimiter) CurrentDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delay
}
