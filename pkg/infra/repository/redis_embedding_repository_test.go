package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
)

func TestRedisEmbeddingRepository_Store(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisEmbeddingRepository(cache.NewClientWithRedis(db), 0)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := &embedding.Embedding{Value: []float32{0.6, 0.8}, ModelVersion: "hashing/feature-hashing@v1", CreatedAt: created}
	expected, err := json.Marshal(&embedding.Embedding{
		EntityID: "gcn", Value: e.Value, ModelVersion: e.ModelVersion, CreatedAt: created,
	})
	require.NoError(t, err)

	mock.ExpectSet("embedding:paper:gcn", string(expected), 0).SetVal("OK")
	require.NoError(t, repo.Store(context.Background(), record.KindPaper, "gcn", e))
	assert.Empty(t, e.EntityID, "caller's value is not modified")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisEmbeddingRepository_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewRedisEmbeddingRepository(cache.NewClientWithRedis(db), 0)
	ctx := context.Background()

	mock.ExpectGet("embedding:dataset:cora").
		SetVal(`{"entity_id":"cora","value":[1,0],"model_version":"v","created_at":"2026-01-02T03:04:05Z"}`)
	got, err := repo.GetByTargetID(ctx, record.KindDataset, "cora")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Value)
	assert.Equal(t, "v", got.ModelVersion)

	mock.ExpectGet("embedding:dataset:none").RedisNil()
	_, err = repo.GetByTargetID(ctx, record.KindDataset, "none")
	assert.ErrorIs(t, err, embedding.ErrNotFound)

	mock.ExpectGet("embedding:dataset:err").SetErr(errors.New("timeout"))
	_, err = repo.GetByTargetID(ctx, record.KindDataset, "err")
	require.Error(t, err)
	assert.NotErrorIs(t, err, embedding.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
