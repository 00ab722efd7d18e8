package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Agent search
	PaperSearchHandler   Handler
	DatasetSearchHandler Handler
	AgentSearchHandler   Handler
	MultiSearchHandler   Handler
	SearchInfoHandler    Handler

	// Index
	IndexRecordsHandler Handler

	// System
	GetVersionHandler      Handler
	HealthHandler          Handler
	InvalidateCacheHandler Handler
}
