package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/common"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/prometheus"
)

type metricsMiddleware struct {
	logger *logrus.Logger
}

// NewMetricsMiddleware logs every request and feeds the HTTP counters.
func NewMetricsMiddleware(logger *logrus.Logger) Middleware {
	return &metricsMiddleware{logger: logger}
}

func (m *metricsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start, ok := c.Locals(common.StartTimeContextKey).(time.Time)
		if !ok {
			start = time.Now()
		}

		nextErr := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(nextErr, &fiberErr) {
			status = fiberErr.Code
		}
		elapsed := time.Since(start)

		route := c.Route().Path
		prometheus.ObserveHTTP(c.Method(), route, status, elapsed)

		requestID, _ := c.Locals(common.RequestIDContextKey).(string)
		entry := m.logger.WithFields(logrus.Fields{
			"method":      c.Method(),
			"path":        c.Path(),
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  requestID,
		})
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Warn("request failed")
		default:
			entry.Debug("request served")
		}
		return nextErr
	}
}
