package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
)

type searchInfoHandler struct {
	logger  *logrus.Logger
	manager search.Manager
}

func NewSearchInfoHandler(logger *logrus.Logger, manager search.Manager) Handler {
	return &searchInfoHandler{
		logger:  logger,
		manager: manager,
	}
}

// Handle @Summary Agent search capabilities
// @Description Lists the search types, indexed kinds and effective search settings
// @Tags Search
// @Produce json
// @Success 200 {object} search.Info
// @Router /api/v1/search/agent/info [get]
func (h *searchInfoHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.manager.Info())
}
