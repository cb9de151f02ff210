package main

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerMinute = 14
	defaultRequestsPerDay    = 1400
)

// RateLimitRemaining reports how many acquisitions each window still allows
type RateLimitRemaining struct {
	MinuteRemaining int
	DayRemaining    int
}

// rateWindow is a FIFO of admission timestamps bounded by limit
type rateWindow struct {
	duration time.Duration
	limit    int
	stamps   []time.Time
}

func (w *rateWindow) prune(now time.Time) {
	drop := 0
	for drop < len(w.stamps) && now.Sub(w.stamps[drop]) > w.duration {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
}

func (w *rateWindow) hasRoom() bool {
	return len(w.stamps) < w.limit
}

func (w *rateWindow) remaining() int {
	if r := w.limit - len(w.stamps); r > 0 {
		return r
	}
	return 0
}

// RateLimiter admits work against a per-minute and a per-day quota at once.
// It never blocks: a rejected TryAcquire is reported to the caller immediately.
type RateLimiter struct {
	mu     sync.Mutex
	minute rateWindow
	day    rateWindow
	clock  func() time.Time
}

// RateLimiterOption mutates a RateLimiter at construction
type RateLimiterOption func(*RateLimiter)

// WithLimiterClock replaces the wall clock, mostly for tests
func WithLimiterClock(clock func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRateLimiter creates a limiter; non-positive limits fall back to 14/min and 1400/day
func NewRateLimiter(perMinute, perDay int, opts ...RateLimiterOption) *RateLimiter {
	if perMinute <= 0 {
		perMinute = defaultRequestsPerMinute
	}
	if perDay <= 0 {
		perDay = defaultRequestsPerDay
	}

	r := &RateLimiter{
		minute: rateWindow{duration: time.Minute, limit: perMinute},
		day:    rateWindow{duration: 24 * time.Hour, limit: perDay},
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryAcquire records one admission in both windows if both have room.
// On rejection neither window changes.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.minute.prune(now)
	r.day.prune(now)

	if !r.minute.hasRoom() || !r.day.hasRoom() {
		return false
	}

	r.minute.stamps = append(r.minute.stamps, now)
	r.day.stamps = append(r.day.stamps, now)
	return true
}

// Remaining reports the quota left as of the last prune
func (r *RateLimiter) Remaining() RateLimitRemaining {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitRemaining{
		MinuteRemaining: r.minute.remaining(),
		DayRemaining:    r.day.remaining(),
	}
}
