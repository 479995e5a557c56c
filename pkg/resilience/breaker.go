// Package resilience wraps external calls (embedding provider, LLM
// provider, vector index) with the circuit breaker and retry policy §7
// describes. The breaker settings mirror the gobreaker.Settings shape used
// in jordigilh-kubernaut's notification circuit breaker: trip after a run
// of consecutive failures, half-open probes bounded by MaxRequests, and an
// optional OnStateChange hook passed through to gobreaker.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures one named circuit breaker.
type BreakerConfig struct {
	Name                string
	MaxHalfOpenRequests  uint32
	OpenDuration         time.Duration
	ConsecutiveFailures  uint32
	OnStateChange        func(name string, from, to gobreaker.State)
}

// Breaker wraps gobreaker.CircuitBreaker with a context-aware Execute.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a Breaker from config, defaulting unset fields to the
// values §7 names: trip after 5 consecutive failures, 30s open, 1 half-open
// probe.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenDuration == 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	if cfg.MaxHalfOpenRequests == 0 {
		cfg.MaxHalfOpenRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState/ErrTooManyRequests when the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	return b.cb.Execute(func() (any, error) { return fn(ctx) })
}

// State reports the breaker's current state, for health endpoints.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
