// Package breaker provides the reusable circuit breaker applied uniformly to
// every remote call (collaborative source, catalog source of truth, cache
// backing store, event store). It wraps sony/gobreaker with the semantics the
// pipeline relies on: CLOSED -> OPEN after K consecutive failures, OPEN ->
// HALF_OPEN after cooldown T, HALF_OPEN -> CLOSED on the next success and
// back to OPEN on the next failure. While OPEN, calls fail fast without
// invoking the wrapped function.
package breaker

import (
	stderrors "errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
)

// State names exposed for observability.
const (
	StateClosed   = "closed"
	StateHalfOpen = "half-open"
	StateOpen     = "open"
)

// Settings configures a single breaker instance.
type Settings struct {
	Name string
	// FailureThreshold is K: consecutive failures before the circuit opens.
	FailureThreshold uint32
	// Cooldown is T: how long the circuit stays open before a half-open probe.
	Cooldown time.Duration
}

// Breaker guards a single remote dependency. Safe for concurrent use;
// state mutation is synchronized by the underlying gobreaker.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[interface{}]
}

// New creates a breaker with the given settings.
func New(s Settings, log logger.Logger) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown == 0 {
		s.Cooldown = 30 * time.Second
	}

	metrics.BreakerState.WithLabelValues(s.Name).Set(0)

	threshold := s.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name: s.Name,
		// One probe at a time while half-open; its outcome decides the
		// next state.
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			log.Info("circuit breaker state transition", map[string]interface{}{
				"breaker": name,
				"from":    fromStr,
				"to":      toStr,
			})
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Breaker{name: s.Name, cb: cb}
}

// Name returns the breaker's identity.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn behind the breaker. While the circuit is open it returns a
// CIRCUIT_OPEN error without invoking fn.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.NewCircuitOpenError(b.name)
		}
		return nil, err
	}
	return result, nil
}

// Do is a typed convenience wrapper around Execute.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	out, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// State returns the breaker's current state name.
func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
