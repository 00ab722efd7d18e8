package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"golang.org/x/time/rate"
)

const rateLimitKeyPrefix = "ratelimit:search:"

var clientIPHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"True-Client-IP",
	"CF-Connecting-IP",
}

type RateLimitOpts struct {
	Limit  int
	Window time.Duration
	// Redis shares the window across replicas. Without it every replica
	// keeps its own token buckets.
	Redis *redis.Client
}

type rateLimitMiddleware struct {
	logger       *logrus.Logger
	limit        int
	window       time.Duration
	redis        *redis.Client
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID

	mu      sync.Mutex
	buckets *cache.TTLMap[*rate.Limiter]
}

func NewRateLimitMiddleware(logger *logrus.Logger, opts RateLimitOpts) Middleware {
	return newRateLimitMiddleware(logger, opts)
}

func newRateLimitMiddleware(logger *logrus.Logger, opts RateLimitOpts) *rateLimitMiddleware {
	return &rateLimitMiddleware{
		logger:       logger,
		limit:        opts.Limit,
		window:       opts.Window,
		redis:        opts.Redis,
		timeProvider: time.Now,
		uuidProvider: uuid.New,
		buckets:      cache.NewTTLMap[*rate.Limiter](2 * opts.Window),
	}
}

func (m *rateLimitMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := clientIP(c)

		var (
			remaining int
			allowed   bool
			err       error
		)
		if m.redis != nil {
			remaining, allowed, err = m.allowRedis(c.UserContext(), client)
		} else {
			remaining, allowed = m.allowLocal(client)
		}
		if err != nil {
			// fail open
			m.logger.WithError(err).Warn("rate limiter unavailable, letting request through")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		if !allowed {
			retryAfter := strconv.Itoa(int(m.window.Seconds()))
			c.Set("Retry-After", retryAfter)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("rate limit exceeded, retry after %s seconds", retryAfter),
			})
		}
		return c.Next()
	}
}

// allowRedis counts requests of client in a sorted set scored by unix time.
func (m *rateLimitMiddleware) allowRedis(ctx context.Context, client string) (int, bool, error) {
	key := rateLimitKeyPrefix + client
	now := m.timeProvider()
	windowStart := now.Add(-m.window).Unix()

	count, err := m.redis.ZCount(ctx, key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("count requests: %w", err)
	}
	if count >= int64(m.limit) {
		return 0, false, nil
	}

	member := fmt.Sprintf("%d:%s", now.Unix(), m.uuidProvider().String())
	pipe := m.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.Unix()), Member: member})
	pipe.Expire(ctx, key, m.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("record request: %w", err)
	}
	return m.limit - int(count) - 1, true, nil
}

func (m *rateLimitMiddleware) allowLocal(client string) (int, bool) {
	m.mu.Lock()
	limiter, ok := m.buckets.Get(client)
	if !ok {
		every := m.window / time.Duration(max(m.limit, 1))
		limiter = rate.NewLimiter(rate.Every(every), m.limit)
	}
	m.buckets.Set(client, limiter)
	m.mu.Unlock()

	allowed := limiter.AllowN(m.timeProvider(), 1)
	return int(limiter.TokensAt(m.timeProvider())), allowed
}

func clientIP(c *fiber.Ctx) string {
	for _, h := range clientIPHeaders {
		if v := c.Get(h); v != "" {
			return v
		}
	}
	return c.IP()
}
