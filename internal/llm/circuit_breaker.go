package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because the backend has been failing.
var ErrCircuitOpen = errors.New("llm circuit breaker is open")

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the
	// circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a test
	// request. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of successes in half-open state
	// required to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// BreakerProvider wraps a Provider with a gobreaker circuit breaker so a
// failing backend gets fast-failed instead of piling up blocked sessions.
// Stream establishment and Complete calls count toward the breaker; errors
// inside an already-open stream do not.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps inner with a circuit breaker.
func NewBreakerProvider(inner Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *BreakerProvider) Stream(ctx context.Context, req *Request) (Stream, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.inner.Stream(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.(Stream), nil
}

func (p *BreakerProvider) Complete(ctx context.Context, req *Request) (string, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}
		return "", err
	}
	return result.(string), nil
}

// State returns "closed", "open" or "half-open" for health reporting.
func (p *BreakerProvider) State() string {
	switch p.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
