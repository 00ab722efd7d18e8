package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ResponseCache stores serialized search responses. A miss and a backend
// failure look the same to callers; failures are logged.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Clear(ctx context.Context) (int, error)
}

type memoryResponseCache struct {
	entries *TTLMap[[]byte]
}

func NewMemoryResponseCache(ttl time.Duration) ResponseCache {
	return &memoryResponseCache{entries: NewTTLMap[[]byte](ttl)}
}

func (c *memoryResponseCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.entries.Get(key)
}

func (c *memoryResponseCache) Set(_ context.Context, key string, value []byte) {
	c.entries.Set(key, value)
}

func (c *memoryResponseCache) Clear(_ context.Context) (int, error) {
	n := c.entries.Len()
	c.entries.Clear()
	return n, nil
}

type redisResponseCache struct {
	client Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisResponseCache shares cached responses between replicas.
func NewRedisResponseCache(client Client, ttl time.Duration, logger *logrus.Logger) ResponseCache {
	return &redisResponseCache{client: client, ttl: ttl, logger: logger}
}

func (c *redisResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, ResponseKeyPrefix+key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("response cache read failed")
		}
		return nil, false
	}
	return []byte(value), true
}

func (c *redisResponseCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, ResponseKeyPrefix+key, string(value), c.ttl); err != nil {
		c.logger.WithError(err).Warn("response cache write failed")
	}
}

func (c *redisResponseCache) Clear(ctx context.Context) (int, error) {
	return c.client.DeleteByPattern(ctx, ResponseKeyPrefix+"*")
}
