package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
)

type guardedCreator struct {
	next    embedding.Creator
	breaker httpx.CircuitBreaker
}

// NewGuardedCreator runs every embedding call through a circuit breaker. While
// the breaker is open calls fail fast with search.ErrUpstreamUnavailable.
// Cancellations by the caller do not count as provider failures.
func NewGuardedCreator(next embedding.Creator, breaker httpx.CircuitBreaker) embedding.Creator {
	return &guardedCreator{next: next, breaker: breaker}
}

func (g *guardedCreator) Generate(ctx context.Context, text, model string) (*embedding.Embedding, error) {
	var (
		out       *embedding.Embedding
		callerErr error
	)
	err := g.breaker.Execute(func() error {
		res, err := g.next.Generate(ctx, text, model)
		if err != nil && errors.Is(err, context.Canceled) {
			callerErr = err
			return nil
		}
		out = res
		return err
	})
	if callerErr != nil {
		return nil, callerErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", search.ErrUpstreamUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
