// Package resilience wraps routing provider HTTP calls in a circuit breaker
// and a timeout, and keeps a registry of each endpoint's health for the ops
// endpoints.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig tunes the breaker in front of one provider endpoint.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is the number of probe calls let through while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically so a handful of
	// old failures cannot trip the breaker hours later. Zero never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open. Every call in that window
	// is answered by the caller's straight-line fallback.
	Timeout time.Duration

	// ReadyToTrip defaults to DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig trips on DefaultReadyToTrip and lets one
// probe through after 30s open. Closed counts reset every 5 minutes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

const (
	tripConsecutive = 3
	tripMinRequests = 5
	tripFailureRate = 0.5
)

// DefaultReadyToTrip opens the circuit after 3 failures in a row, or once at
// least 5 calls have been made and half of them failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= tripConsecutive {
		return true
	}
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRate
}

// countsAgainstProvider reports whether err says something about the
// provider. A request abandoned by its own caller does not.
func countsAgainstProvider(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// NewCircuitBreaker builds a gobreaker breaker from cfg. Unset fields take
// their DefaultCircuitBreakerConfig values.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	defaults := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = defaults.ReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
		IsSuccessful: func(err error) bool {
			return !countsAgainstProvider(err)
		},
	})
}

// LogStateChange logs breaker transitions. Opening is a warning because
// plans computed while open use estimated distances and geometry.
func LogStateChange(logger zerolog.Logger) func(name string, from gobreaker.State, to gobreaker.State) {
	return func(name string, from gobreaker.State, to gobreaker.State) {
		event := logger.Info()
		msg := "routing provider circuit changed state"
		switch to {
		case gobreaker.StateOpen:
			event = logger.Warn()
			msg = "routing provider circuit opened, falling back to estimates"
		case gobreaker.StateHalfOpen:
			msg = "routing provider circuit half-open, probing"
		case gobreaker.StateClosed:
			msg = "routing provider circuit closed"
		}
		event.
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg(msg)
	}
}
