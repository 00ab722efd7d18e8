package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/request"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/response"
)

type multiSearchHandler struct {
	logger       *logrus.Logger
	manager      search.Manager
	defaultLimit int
}

func NewMultiSearchHandler(logger *logrus.Logger, manager search.Manager, defaultLimit int) Handler {
	return &multiSearchHandler{
		logger:       logger,
		manager:      manager,
		defaultLimit: defaultLimit,
	}
}

// Handle @Summary Multi-type agent search
// @Description Runs the same query against several search types in parallel
// @Tags Search
// @Accept json
// @Produce json
// @Param request body request.MultiSearchRequest true "Multi search request"
// @Success 200 {object} response.MultiSearchOutput
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 503 {object} map[string]interface{} "Search backend unavailable"
// @Router /api/v1/search/agent/multi [post]
func (h *multiSearchHandler) Handle(c *fiber.Ctx) error {
	var req request.MultiSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	filters, err := request.DecodeFilters(req.Filters)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}
	resp, err := h.manager.MultiSearch(c.UserContext(), search.MultiRequest{
		Query:       req.Query,
		SearchTypes: req.SearchTypes,
		Filters:     filters,
		Limit:       limit,
	})
	if err != nil {
		return handleSearchError(c, h.logger, err)
	}
	return c.Status(fiber.StatusOK).JSON(response.NewMultiSearchOutput(resp))
}
