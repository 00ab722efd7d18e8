package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

const reconnectDelay = time.Second

type redisEventListener struct {
	logger   *logrus.Logger
	client   Client
	registry map[string]reflect.Type

	mu          sync.RWMutex
	subscribers map[reflect.Type][]interface{}
}

func NewRedisEventListener(
	logger *logrus.Logger,
	client Client,
	registry map[string]reflect.Type,
) EventListener {
	return &redisEventListener{
		logger:      logger,
		client:      client,
		subscribers: make(map[reflect.Type][]interface{}),
		registry:    registry,
	}
}

func RegisterEventSubscriber[T event.Event](l EventListener, subscriber EventSubscriber[T]) {
	var evt T
	l.Register(reflect.TypeOf(evt), subscriber)
}

func (r *redisEventListener) Register(eventType reflect.Type, subscriber interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[eventType] = append(r.subscribers[eventType], subscriber)
}

// Listen blocks until ctx is done, resubscribing after connection loss.
func (r *redisEventListener) Listen(ctx context.Context, channels ...channel.Channel) {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, string(ch))
	}

	for {
		r.listenOnce(ctx, names)
		if ctx.Err() != nil {
			r.logger.Info("redis pubsub listener shutting down")
			return
		}

		r.logger.WithField("retry_in", reconnectDelay.String()).Warn("redis pubsub disconnected")
		timer := time.NewTimer(reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("redis pubsub listener shutting down")
			return
		case <-timer.C:
		}
	}
}

func (r *redisEventListener) listenOnce(ctx context.Context, names []string) {
	pubSub := r.client.RedisClient().Subscribe(ctx, names...)
	defer func() { _ = pubSub.Close() }()

	r.logger.WithField("channels", names).Debug("redis pubsub connected")

	msgs := pubSub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handleMessage(ctx, msg.Payload)
		}
	}
}

func (r *redisEventListener) handleMessage(ctx context.Context, payload string) {
	var envelope RedisMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		r.logger.WithError(err).Error("error decoding redis message")
		return
	}

	concreteType, err := r.eventType(envelope.Type)
	if err != nil {
		r.logger.WithError(err).Warn("dropping redis message")
		return
	}

	eventPtr := reflect.New(concreteType)
	if err := json.Unmarshal(envelope.Event, eventPtr.Interface()); err != nil {
		r.logger.WithError(err).Error("error unmarshalling event data into concrete type")
		return
	}
	r.notifySubscribers(ctx, eventPtr.Elem())
}

func (r *redisEventListener) notifySubscribers(ctx context.Context, ev reflect.Value) {
	r.mu.RLock()
	subs := r.subscribers[ev.Type()]
	r.mu.RUnlock()

	for _, sub := range subs {
		method := reflect.ValueOf(sub).MethodByName("OnEvent")
		if !method.IsValid() {
			continue
		}
		results := method.Call([]reflect.Value{reflect.ValueOf(ctx), ev})
		if len(results) > 0 && !results[0].IsNil() {
			if err, ok := results[0].Interface().(error); ok {
				r.logger.WithError(err).WithField("event", ev.Type().Name()).Error("event subscriber failed")
			}
		}
	}
}

func (r *redisEventListener) eventType(name string) (reflect.Type, error) {
	concreteType, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", name)
	}
	return concreteType, nil
}
