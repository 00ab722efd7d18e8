package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

// handleSearchError maps pipeline errors onto status codes. Only invalid
// input echoes the error text back to the caller.
func handleSearchError(c *fiber.Ctx, logger *logrus.Logger, err error) error {
	switch {
	case errors.Is(err, search.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, search.ErrUpstreamUnavailable):
		logger.WithError(err).Warn("search backend unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "search backend unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		logger.WithError(err).Warn("search timed out")
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "search timed out"})
	default:
		logger.WithError(err).Error("search failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
