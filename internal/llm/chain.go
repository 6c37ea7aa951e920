package llm

import (
	"context"
	"errors"
	"time"

	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/metrics"
)

// Chain tries providers in order until one succeeds. All attempts share one
// timeout budget. When every provider fails the request gets
// ErrChainExhausted; the chain itself stays usable.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	log       *logger.Logger
}

func NewChain(timeout time.Duration, log *logger.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		timeout:   timeout,
		log:       log.With("component", "llm.chain"),
	}
}

func (c *Chain) Len() int { return len(c.providers) }

// Names lists providers in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var errs []error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		metrics.ProviderFailures.WithLabelValues(p.Name()).Inc()
		c.log.Warn("llm provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, &ProviderError{Provider: p.Name(), Err: err})
	}
	return nil, errors.Join(append([]error{ErrChainExhausted}, errs...)...)
}
