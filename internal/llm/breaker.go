package llm

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/metrics"
)

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
}

// BreakerProvider short-circuits a provider that keeps failing so the chain
// moves on without waiting for it.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[*Response]
}

func WithBreaker(p Provider, cfg BreakerConfig, log *logger.Logger) *BreakerProvider {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := p.Name()
	log = log.With("component", "llm.breaker", "provider", name)
	metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not the provider's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}
	return &BreakerProvider{inner: p, cb: gobreaker.NewCircuitBreaker[*Response](settings)}
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

func (b *BreakerProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return b.cb.Execute(func() (*Response, error) {
		return b.inner.Complete(ctx, req)
	})
}

func (b *BreakerProvider) State() string { return b.cb.State().String() }
