package cache

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
)

type EventListener interface {
	Listen(ctx context.Context, channels ...channel.Channel)
	Register(eventType reflect.Type, subscriber interface{})
}

type EventSubscriber[T any] interface {
	OnEvent(ctx context.Context, ev T) error
}

// RedisMessage is the pubsub envelope; Type selects the concrete event.
type RedisMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}
