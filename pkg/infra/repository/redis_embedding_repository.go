package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
)

type redisEmbeddingRepository struct {
	client cache.Client
	ttl    time.Duration
}

// NewRedisEmbeddingRepository persists vectors as JSON under
// embedding:<kind>:<id>. A ttl of zero keeps them forever.
func NewRedisEmbeddingRepository(client cache.Client, ttl time.Duration) embedding.Repository {
	return &redisEmbeddingRepository{
		client: client,
		ttl:    ttl,
	}
}

func embeddingKey(kind record.Kind, targetID string) string {
	return fmt.Sprintf(cache.EmbeddingKeyPattern, kind, targetID)
}

func (r *redisEmbeddingRepository) Store(
	ctx context.Context,
	kind record.Kind,
	targetID string,
	embeddingData *embedding.Embedding,
) error {
	stored := *embeddingData
	stored.EntityID = targetID
	jsonData, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding data: %w", err)
	}
	return r.client.Set(ctx, embeddingKey(kind, targetID), string(jsonData), r.ttl)
}

func (r *redisEmbeddingRepository) GetByTargetID(
	ctx context.Context,
	kind record.Kind,
	targetID string,
) (*embedding.Embedding, error) {
	jsonData, err := r.client.Get(ctx, embeddingKey(kind, targetID))
	if errors.Is(err, redis.Nil) {
		return nil, embedding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding from cache: %w", err)
	}

	var data embedding.Embedding
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding data: %w", err)
	}
	return &data, nil
}
