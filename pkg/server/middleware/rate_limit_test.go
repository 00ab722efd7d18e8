package middleware

import (
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedApp(m *rateLimitMiddleware) *fiber.App {
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, ip string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, resp.Header.Get("Retry-After")
}

func TestRateLimit_Local(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := newRateLimitMiddleware(logger, RateLimitOpts{Limit: 2, Window: time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.timeProvider = func() time.Time { return now }
	app := rateLimitedApp(m)

	status, _ := get(t, app, "10.0.0.1")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = get(t, app, "10.0.0.1")
	assert.Equal(t, fiber.StatusOK, status)

	status, retryAfter := get(t, app, "10.0.0.1")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "60", retryAfter)

	status, _ = get(t, app, "10.0.0.2")
	assert.Equal(t, fiber.StatusOK, status, "other clients keep their own budget")

	now = now.Add(time.Minute)
	status, _ = get(t, app, "10.0.0.1")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRateLimit_RedisExceeded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	db, mock := redismock.NewClientMock()
	m := newRateLimitMiddleware(logger, RateLimitOpts{Limit: 5, Window: time.Minute, Redis: db})
	now := time.Unix(1_700_000_000, 0)
	m.timeProvider = func() time.Time { return now }

	mock.ExpectZCount("ratelimit:search:10.0.0.1",
		strconv.FormatInt(now.Add(-time.Minute).Unix(), 10),
		strconv.FormatInt(now.Unix(), 10)).SetVal(5)

	status, retryAfter := get(t, rateLimitedApp(m), "10.0.0.1")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "60", retryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_RedisFailureFailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	db, mock := redismock.NewClientMock()
	m := newRateLimitMiddleware(logger, RateLimitOpts{Limit: 5, Window: time.Minute, Redis: db})
	now := time.Unix(1_700_000_000, 0)
	m.timeProvider = func() time.Time { return now }

	mock.ExpectZCount("ratelimit:search:10.0.0.1",
		strconv.FormatInt(now.Add(-time.Minute).Unix(), 10),
		strconv.FormatInt(now.Unix(), 10)).SetErr(errors.New("connection refused"))

	status, _ := get(t, rateLimitedApp(m), "10.0.0.1")
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "rate limiter unavailable, letting request through", hook.LastEntry().Message)
}
