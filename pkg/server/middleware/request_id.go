package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ya-paperswithcode/agentsearch/pkg/common"
)

const maxRequestIDLength = 128

type requestIDMiddleware struct{}

// NewRequestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-Id when it is sane, and echoes it back on the response.
func NewRequestIDMiddleware() Middleware {
	return &requestIDMiddleware{}
}

func (m *requestIDMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(common.RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
		}
		start := time.Now()

		c.Locals(common.RequestIDContextKey, requestID)
		c.Locals(common.StartTimeContextKey, start)
		c.Set(common.RequestIDHeader, requestID)

		ctx := context.WithValue(c.UserContext(), common.RequestIDContextKey, requestID)
		ctx = context.WithValue(ctx, common.StartTimeContextKey, start)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
