// Package circuitbreaker wraps sony/gobreaker with a typed interface and
// sensible defaults for upstream RPC and API calls.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/themule888/spread-scanner/internal/apperror"
)

// Config configures a circuit breaker.
type Config struct {
	// Name identifies the breaker in logs and state change callbacks.
	Name string

	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval after which the closed-state counters reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ReadyToTrip decides when the breaker opens. Nil uses the default
	// of 5 consecutive failures.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is invoked on every state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a configuration tuned for flaky network upstreams:
// trip after 5 consecutive failures, probe again after 30 seconds.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// CircuitBreaker is a typed wrapper around gobreaker.CircuitBreaker.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a circuit breaker from the given configuration.
func New[T any](cfg Config) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	}
	return &CircuitBreaker[T]{
		cb: gobreaker.NewCircuitBreaker[T](settings),
	}
}

// Execute runs fn through the breaker. When the breaker is open the call is
// rejected without invoking fn and an AppError with CodeCircuitOpen is
// returned.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		switch err {
		case gobreaker.ErrOpenState:
			return result, apperror.New(apperror.CodeCircuitOpen,
				apperror.WithContext("breaker", c.cb.Name()),
				apperror.WithCause(err))
		case gobreaker.ErrTooManyRequests:
			return result, apperror.New(apperror.CodeCircuitHalfOpen,
				apperror.WithContext("breaker", c.cb.Name()),
				apperror.WithCause(err))
		}
	}
	return result, err
}

// State returns the current breaker state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}

// Counts returns a snapshot of the breaker counters.
func (c *CircuitBreaker[T]) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
