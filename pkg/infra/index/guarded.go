package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
)

// Guarded routes lookups through a circuit breaker. Once open, TopK fails
// fast with search.ErrUpstreamUnavailable. Writes bypass the breaker.
//
// A lookup that runs past a deadline, its own or the caller's, counts as a
// failure of the index. Only an explicit cancellation by the caller does not.
type Guarded struct {
	search.Index
	breaker httpx.CircuitBreaker
	timeout time.Duration
}

var _ search.Index = (*Guarded)(nil)

// NewGuarded wraps next. A positive timeout bounds every lookup.
func NewGuarded(next search.Index, breaker httpx.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{Index: next, breaker: breaker, timeout: timeout}
}

func (g *Guarded) TopK(ctx context.Context, vector []float32, k int, exclude []string) ([]search.Neighbor, error) {
	lookupCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.timeout > 0 {
		lookupCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	defer cancel()

	var out []search.Neighbor
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.Index.TopK(lookupCtx, vector, k, exclude)
		if err == nil {
			err = lookupCtx.Err()
		}
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("similarity index: %w: %w", search.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
