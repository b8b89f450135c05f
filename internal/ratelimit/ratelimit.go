// Package ratelimit provides a wrapper around golang.org/x/time/rate plus a
// sliding-window call counter for per-source request accounting.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with convenience methods.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a new rate limiter.
// requestsPerMinute specifies how many requests are allowed per minute.
func New(requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 10 // Allow burst of 10% of rate limit
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewWithBurst creates a new rate limiter with explicit burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the current number of available tokens.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// SetLimit updates the rate limit.
func (l *Limiter) SetLimit(requestsPerMinute int) {
	rps := float64(requestsPerMinute) / 60.0
	l.limiter.SetLimit(rate.Limit(rps))
}

// CallWindow counts calls within a trailing time window. It is owned by a
// single quote source and accessed only from that source's goroutine, so it
// carries no lock.
type CallWindow struct {
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// NewCallWindow creates a counter over the given trailing window.
// A zero window defaults to 60 seconds.
func NewCallWindow(window time.Duration) *CallWindow {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &CallWindow{
		window: window,
		now:    time.Now,
	}
}

// Record appends a call timestamp and prunes entries older than the window.
func (w *CallWindow) Record() {
	now := w.now()
	w.calls = append(w.calls, now)

	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.calls); i++ {
		if w.calls[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

// Count returns the number of calls inside the trailing window.
func (w *CallWindow) Count() int {
	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
