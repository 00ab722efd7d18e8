package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	domainSearch "github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/request"
	"github.com/ya-paperswithcode/agentsearch/pkg/handlers/http/response"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

type IndexRecordsHandlerDeps struct {
	Logger    *logrus.Logger
	Indexers  map[record.Kind]embedding.Indexer
	Manager   search.Manager
	Publisher cache.EventPublisher
	Instance  string
}

type indexRecordsHandler struct {
	logger    *logrus.Logger
	indexers  map[record.Kind]embedding.Indexer
	manager   search.Manager
	publisher cache.EventPublisher
	instance  string
}

func NewIndexRecordsHandler(deps IndexRecordsHandlerDeps) Handler {
	return &indexRecordsHandler{
		logger:    deps.Logger,
		indexers:  deps.Indexers,
		manager:   deps.Manager,
		publisher: deps.Publisher,
		instance:  deps.Instance,
	}
}

// Handle @Summary Index records
// @Description Embeds the given records and makes them searchable without a rebuild
// @Tags Index
// @Accept json
// @Produce json
// @Param kind path string true "papers or datasets"
// @Param request body request.IndexRecordsRequest true "Record ids"
// @Success 200 {object} response.IndexRecordsOutput
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 503 {object} map[string]interface{} "Embedding provider unavailable"
// @Router /api/v1/index/{kind}/records [post]
func (h *indexRecordsHandler) Handle(c *fiber.Ctx) error {
	kind, err := record.ParseKind(c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	indexer, ok := h.indexers[kind]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": kind.Plural() + " are not indexed"})
	}

	var req request.IndexRecordsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	report, err := indexer.IndexRecords(c.UserContext(), req.IDs)
	if err != nil {
		if errors.Is(err, domainSearch.ErrUpstreamUnavailable) {
			h.logger.WithError(err).Warn("embedding provider unavailable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "embedding provider unavailable"})
		}
		h.logger.WithError(err).Error("failed to index records")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to index records"})
	}

	if report.Indexed > 0 {
		if _, err := h.manager.InvalidateCache(c.UserContext()); err != nil {
			h.logger.WithError(err).Warn("failed to clear response cache after indexing")
		}
		indexed := make([]string, 0, report.Indexed)
		skipped := make(map[string]bool, len(report.Missing)+len(report.Failed))
		for _, id := range append(report.Missing, report.Failed...) {
			skipped[id] = true
		}
		for _, id := range req.IDs {
			if !skipped[id] {
				indexed = append(indexed, id)
			}
		}
		err := h.publisher.Publish(c.UserContext(), event.RecordsIndexedEvent{
			Origin: h.instance,
			Kind:   string(kind),
			IDs:    indexed,
		})
		if err != nil {
			h.logger.WithError(err).Warn("failed to publish indexed records")
		}
	}

	h.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"indexed": report.Indexed,
		"missing": len(report.Missing),
		"failed":  len(report.Failed),
	}).Info("records indexed")
	return c.Status(fiber.StatusOK).JSON(response.NewIndexRecordsOutput(report))
}
