package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ya-paperswithcode/agentsearch/pkg/common"
)

type corsMiddleware struct {
	allowOrigins  []string
	allowMethods  []string
	exposeHeaders []string
	maxAge        string
}

// NewCORSMiddleware answers browser preflights for the search API. An empty
// origin list disables the middleware.
func NewCORSMiddleware(allowOrigins []string) Middleware {
	return &corsMiddleware{
		allowOrigins:  allowOrigins,
		allowMethods:  []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions},
		exposeHeaders: []string{common.RequestIDHeader, common.SearchIDHeader, common.CacheHeader},
		maxAge:        "600",
	}
}

func (m *corsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin == "" || len(m.allowOrigins) == 0 {
			return c.Next()
		}

		allowed := slices.ContainsFunc(m.allowOrigins, func(o string) bool {
			return o == "*" || strings.EqualFold(o, origin)
		})
		if !allowed {
			return c.Next()
		}

		c.Set("Vary", "Origin")
		if slices.Contains(m.allowOrigins, "*") {
			c.Set("Access-Control-Allow-Origin", "*")
		} else {
			c.Set("Access-Control-Allow-Origin", origin)
		}
		c.Set("Access-Control-Expose-Headers", strings.Join(m.exposeHeaders, ", "))

		if c.Method() == fiber.MethodOptions && c.Get("Access-Control-Request-Method") != "" {
			c.Set("Access-Control-Allow-Methods", strings.Join(m.allowMethods, ", "))
			if reqHeaders := c.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				c.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				c.Set("Access-Control-Allow-Headers", "Content-Type")
			}
			c.Set("Access-Control-Max-Age", m.maxAge)
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
