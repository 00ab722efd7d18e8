package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/common"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/request"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/response"
)

type agentSearchHandler struct {
	logger       *logrus.Logger
	manager      search.Manager
	defaultLimit int
	searchType   string
}

// NewAgentSearchHandler serves one search type. An empty searchType reads
// search_type from the body.
func NewAgentSearchHandler(
	logger *logrus.Logger,
	manager search.Manager,
	defaultLimit int,
	searchType string,
) Handler {
	return &agentSearchHandler{
		logger:       logger,
		manager:      manager,
		defaultLimit: defaultLimit,
		searchType:   searchType,
	}
}

// Handle @Summary Agent search
// @Description Plans query variants, expands them layer by layer over the similarity index and returns ranked papers or datasets
// @Tags Search
// @Accept json
// @Produce json
// @Param request body request.AgentSearchRequest true "Search request"
// @Success 200 {object} response.AgentSearchOutput
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 503 {object} map[string]interface{} "Search backend unavailable"
// @Failure 504 {object} map[string]interface{} "Search timed out"
// @Router /api/v1/search/agent [post]
func (h *agentSearchHandler) Handle(c *fiber.Ctx) error {
	var req request.AgentSearchRequest
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

	searchType := h.searchType
	if searchType == "" {
		searchType = req.SearchType
	}

	resp, err := h.manager.Search(c.UserContext(), search.Request{
		Query:      req.Query,
		SearchType: searchType,
		Profile:    req.AgentType,
		Filters:    filters,
		Limit:      req.EffectiveLimit(h.defaultLimit),
		Overrides: search.Overrides{
			MaxDepth:       req.ExpandLayers,
			Variants:       req.SearchQueries,
			SeedTopK:       req.SearchPapers,
			ExpandFrontier: req.ExpandPapers,
		},
	})
	if err != nil {
		return handleSearchError(c, h.logger, err)
	}

	c.Set(common.SearchIDHeader, resp.SearchID)
	if resp.Cached {
		c.Set(common.CacheHeader, "HIT")
	} else {
		c.Set(common.CacheHeader, "MISS")
	}
	return c.Status(fiber.StatusOK).JSON(response.NewAgentSearchOutput(resp))
}
