package backend

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
)

// DefaultMaxRetries bounds the backoff retries inside one Send attempt.
const DefaultMaxRetries = 3

// ResilientBackend wraps a remote backend with retries and a circuit
// breaker. When the breaker is open, Send fails fast so a dead remote
// cannot stall request handling.
type ResilientBackend struct {
	inner      Backend
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
}

// WrapResilient decorates a backend per its retry configuration. A
// disabled retry config returns the backend unchanged.
func WrapResilient(inner Backend, cfg config.Retry) Backend {
	if cfg.Disabled {
		return inner
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	settings := gobreaker.Settings{
		Name:     inner.Name(),
		Interval: 1 * time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			applog.Default().Warn("Backend '%s': circuit breaker %s -> %s", name, from, to)
		},
	}

	return &ResilientBackend{
		inner:      inner,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: maxRetries,
	}
}

// Send delivers the record through the breaker, retrying transient
// failures with exponential backoff.
func (r *ResilientBackend) Send(rec map[string]interface{}) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		op := func() error {
			return r.inner.Send(rec)
		}
		return nil, backoff.Retry(op, backoff.WithMaxRetries(newBackOff(), r.maxRetries))
	})
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 1.5
	return b
}

// Close closes the wrapped backend.
func (r *ResilientBackend) Close() error {
	return r.inner.Close()
}

// Name returns the wrapped backend's name.
func (r *ResilientBackend) Name() string {
	return r.inner.Name()
}

var _ Backend = (*ResilientBackend)(nil)
