package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/index"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
)

type mapVectors map[string][]float32

func (m mapVectors) GetVector(_ context.Context, id string) ([]float32, error) {
	v, ok := m[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func TestRecordsIndexedEventSubscriber(t *testing.T) {
	ctx := context.Background()
	idx := index.NewFlat(2)
	responses := cache.NewMemoryResponseCache(time.Minute)
	responses.Set(ctx, "stale", []byte("{}"))

	sub := NewRecordsIndexedEventSubscriber(logger.NewDiscardLogger(), "self",
		map[record.Kind]KindTarget{
			record.KindPaper: {Vectors: mapVectors{"p1": {1, 0}}, Index: idx},
		}, responses)

	require.NoError(t, sub.OnEvent(ctx, event.RecordsIndexedEvent{Origin: "self", Kind: "paper", IDs: []string{"p1"}}))
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, sub.OnEvent(ctx, event.RecordsIndexedEvent{Origin: "other", Kind: "paper", IDs: []string{"p1", "gone"}}))
	assert.Equal(t, 1, idx.Len())
	_, ok := responses.Get(ctx, "stale")
	assert.False(t, ok)

	assert.Error(t, sub.OnEvent(ctx, event.RecordsIndexedEvent{Origin: "other", Kind: "dataset", IDs: []string{"d1"}}))
}

func TestCacheInvalidatedEventSubscriber(t *testing.T) {
	ctx := context.Background()
	responses := cache.NewMemoryResponseCache(time.Minute)
	sub := NewCacheInvalidatedEventSubscriber(logger.NewDiscardLogger(), "self", responses)

	responses.Set(ctx, "k", []byte("{}"))
	require.NoError(t, sub.OnEvent(ctx, event.CacheInvalidatedEvent{Origin: "self"}))
	_, ok := responses.Get(ctx, "k")
	assert.True(t, ok)

	require.NoError(t, sub.OnEvent(ctx, event.CacheInvalidatedEvent{Origin: "peer"}))
	_, ok = responses.Get(ctx, "k")
	assert.False(t, ok)
}
