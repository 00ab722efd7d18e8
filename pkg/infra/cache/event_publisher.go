package cache

import (
	"context"

	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

type noopEventPublisher struct{}

// NewNoopEventPublisher is used when redis is disabled and there is a single
// replica.
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) Publish(context.Context, event.Event) error {
	return nil
}
