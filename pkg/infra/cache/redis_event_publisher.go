package cache

import (
	"context"
	"encoding/json"

	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

type redisEventPublisher struct {
	client  Client
	channel channel.Channel
}

func NewRedisEventPublisher(client Client, channel channel.Channel) EventPublisher {
	return &redisEventPublisher{
		client:  client,
		channel: channel,
	}
}

func (p *redisEventPublisher) Publish(ctx context.Context, ev event.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	envelope := RedisMessage{
		Type:  ev.Type(),
		Event: b,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.client.RedisClient().Publish(ctx, string(p.channel), data).Err()
}
