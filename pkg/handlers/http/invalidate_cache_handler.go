package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

type invalidateCacheHandler struct {
	logger    *logrus.Logger
	manager   search.Manager
	publisher cache.EventPublisher
	instance  string
}

func NewInvalidateCacheHandler(
	logger *logrus.Logger,
	manager search.Manager,
	publisher cache.EventPublisher,
	instance string,
) Handler {
	return &invalidateCacheHandler{
		logger:    logger,
		manager:   manager,
		publisher: publisher,
		instance:  instance,
	}
}

// Handle @Summary Invalidate the response cache
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /invalidate-cache [post]
func (h *invalidateCacheHandler) Handle(c *fiber.Ctx) error {
	h.logger.Info("Invalidating cache")

	removed, err := h.manager.InvalidateCache(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("Failed to invalidate cache")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate cache",
		})
	}

	if err := h.publisher.Publish(c.UserContext(), event.CacheInvalidatedEvent{Origin: h.instance}); err != nil {
		h.logger.WithError(err).Warn("Failed to publish cache invalidation")
	}

	h.logger.WithField("removed", removed).Info("Cache invalidated successfully")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Cache invalidated successfully",
		"removed": removed,
	})
}
