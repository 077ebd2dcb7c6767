package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"webchat/internal/apperr"
)

type GuardSettings struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
	RPS         float64
}

// Guard rate-limits calls to the Gemini API and trips a circuit breaker after
// consecutive failures, failing fast while the API is down.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuard(s GuardSettings) *Guard {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	limit := rate.Inf
	burst := 1
	if s.RPS > 0 {
		limit = rate.Limit(s.RPS)
		burst = int(s.RPS)
		if burst < 1 {
			burst = 1
		}
	}

	maxFailures := s.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Caller cancellations say nothing about the API's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("gemini circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guard{breaker: breaker, limiter: rate.NewLimiter(limit, burst)}
}

// Do runs fn once the rate limiter admits it. Open-circuit rejections are
// reported as backend unavailability.
func Do[T any](ctx context.Context, g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	if g == nil {
		return fn()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%w: gemini circuit open", apperr.ErrBackendUnavailable)
	}
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
