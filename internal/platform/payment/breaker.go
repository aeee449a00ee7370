package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerProcessor wraps a Processor with a circuit breaker so a flapping
// payment provider sheds load instead of queueing timeouts. An open circuit
// surfaces as ErrDeclined: retryable from the caller's perspective.
type BreakerProcessor struct {
	inner  Processor
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

func NewBreakerProcessor(inner Processor, logger zerolog.Logger) *BreakerProcessor {
	b := &BreakerProcessor{inner: inner, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("payment circuit state changed")
		},
		IsSuccessful: func(err error) bool {
			// A decline is a normal business outcome, not a provider fault.
			return err == nil || errors.Is(err, ErrDeclined)
		},
	})
	return b
}

func (b *BreakerProcessor) CreateIntent(ctx context.Context, sessionID uuid.UUID, amount int64) (*Intent, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.CreateIntent(ctx, sessionID, amount)
	})
	if err != nil {
		return nil, b.mapBreakerErr(err)
	}
	return result.(*Intent), nil
}

func (b *BreakerProcessor) Confirm(ctx context.Context, intentID string) (*Intent, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		intent, err := b.inner.Confirm(ctx, intentID)
		if err != nil && !errors.Is(err, ErrDeclined) {
			return nil, err
		}
		return intent, err
	})
	if result != nil {
		if intent, ok := result.(*Intent); ok {
			return intent, err
		}
	}
	return nil, b.mapBreakerErr(err)
}

func (b *BreakerProcessor) mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn().Msg("payment circuit open, rejecting charge")
		return ErrDeclined
	}
	return err
}
