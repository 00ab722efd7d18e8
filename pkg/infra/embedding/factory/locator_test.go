package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
)

func TestGetService(t *testing.T) {
	l := NewServiceLocator(logrus.New(), &fasthttp.Client{}, config.EmbeddingConfig{Dimension: 16})

	for _, p := range []string{HashingProvider, OpenAIProvider, GenAIProvider} {
		svc, err := l.GetService(p)
		require.NoError(t, err, p)
		assert.NotNil(t, svc)
	}

	_, err := l.GetService("word2vec")
	assert.ErrorContains(t, err, "unsupported embedding provider")
}

func TestGetService_HashingUsesConfiguredDimension(t *testing.T) {
	l := NewServiceLocator(logrus.New(), nil, config.EmbeddingConfig{Dimension: 16})
	svc, err := l.GetService(HashingProvider)
	require.NoError(t, err)

	e, err := svc.Generate(context.Background(), "image classification", "")
	require.NoError(t, err)
	assert.Len(t, e.Value, 16)
}

type failingCreator struct {
	err   error
	calls int
}

func (f *failingCreator) Generate(ctx context.Context, text, model string) (*embedding.Embedding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.Embedding{Value: []float32{1}}, nil
}

func TestGuardedCreator_OpensAfterFailures(t *testing.T) {
	next := &failingCreator{err: errors.New("503 from provider")}
	g := NewGuardedCreator(next, httpx.NewCircuitBreaker("embed-test", time.Minute, 2))

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "q", "m")
		require.Error(t, err)
		assert.NotErrorIs(t, err, search.ErrUpstreamUnavailable)
	}

	_, err := g.Generate(context.Background(), "q", "m")
	assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
	assert.Equal(t, 2, next.calls)
}

func TestGuardedCreator_CancellationDoesNotTrip(t *testing.T) {
	next := &failingCreator{err: context.Canceled}
	g := NewGuardedCreator(next, httpx.NewCircuitBreaker("cancel-test", time.Minute, 1))

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "q", "m")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, next.calls)
}
