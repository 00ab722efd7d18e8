package router

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	handlers "github.com/ya-paperswithcode/agentsearch/pkg/handlers/http"
	"github.com/ya-paperswithcode/agentsearch/pkg/server/middleware"
)

var (
	ErrInvalidHandlerTransport = errors.New("invalid handler transport")
)

type SearchRouterDI struct {
	MiddlewareTransport *middleware.Transport
	// AdminMiddlewareTransport guards indexing and cache invalidation.
	AdminMiddlewareTransport *middleware.Transport
	HandlerTransport         *handlers.HandlerTransport
	SwaggerURL               string
}

type searchRouter struct {
	middlewareTransport      *middleware.Transport
	adminMiddlewareTransport *middleware.Transport
	handlerTransport         *handlers.HandlerTransport
	swaggerURL               string
}

func NewSearchRouter(di SearchRouterDI) ServerRouter {
	return &searchRouter{
		middlewareTransport:      di.MiddlewareTransport,
		adminMiddlewareTransport: di.AdminMiddlewareTransport,
		handlerTransport:         di.HandlerTransport,
		swaggerURL:               di.SwaggerURL,
	}
}

func (r *searchRouter) BuildRoutes(router *fiber.App) error {
	ht := r.handlerTransport
	if ht == nil || ht.AgentSearchHandler == nil {
		return ErrInvalidHandlerTransport
	}

	if mws := middlewares(r.middlewareTransport); len(mws) > 0 {
		router.Use(mws...)
	}
	admin := middlewares(r.adminMiddlewareTransport)

	router.Static("/swagger.json", "./docs/swagger.json")

	router.Get("/docs/*", swagger.New(swagger.Config{
		URL: r.swaggerURL,
	}))

	router.Get("/health", ht.HealthHandler.Handle)
	router.Get("/version", ht.GetVersionHandler.Handle)
	router.Post("/invalidate-cache", withAdmin(admin, ht.InvalidateCacheHandler)...)

	v1 := router.Group("/api/v1")
	{
		v1.Post("/papers/search/agent", ht.PaperSearchHandler.Handle)
		v1.Post("/datasets/search/agent", ht.DatasetSearchHandler.Handle)

		agent := v1.Group("/search/agent")
		{
			agent.Post("", ht.AgentSearchHandler.Handle)
			agent.Post("/multi", ht.MultiSearchHandler.Handle)
			agent.Get("/info", ht.SearchInfoHandler.Handle)
		}

		v1.Post("/index/:kind/records", withAdmin(admin, ht.IndexRecordsHandler)...)
	}

	return nil
}

func middlewares(t *middleware.Transport) []interface{} {
	if t == nil {
		return nil
	}
	return t.GetMiddlewares()
}

func withAdmin(admin []interface{}, h handlers.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(admin)+1)
	for _, mw := range admin {
		chain = append(chain, mw.(fiber.Handler))
	}
	return append(chain, h.Handle)
}
