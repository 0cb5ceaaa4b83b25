package store

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/banking/verification-service/internal/pkg/logger"
)

// BreakerConfig configures the circuit breaker around a backend
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerBackend stops hammering a failing backend. While the breaker is
// open Save fails fast and the scheduler keeps the state dirty for retry.
type BreakerBackend struct {
	Backend
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps a backend in a circuit breaker
func WithBreaker(name string, b Backend, cfg BreakerConfig, log *logger.Logger) *BreakerBackend {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	log = log.Named("persistence_breaker")

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("persistence breaker state changed",
				logger.StringField("breaker", name),
				logger.StringField("from", from.String()),
				logger.StringField("to", to.String()),
			)
		},
	}

	return &BreakerBackend{Backend: b, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Save writes through the breaker
func (b *BreakerBackend) Save(ctx context.Context, doc []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.Backend.Save(ctx, doc)
	})
	return err
}

// State returns the breaker state
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}
