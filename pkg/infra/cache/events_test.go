package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/channel"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/logger"
)

type recordingSubscriber struct {
	got []event.RecordsIndexedEvent
}

func (s *recordingSubscriber) OnEvent(_ context.Context, ev event.RecordsIndexedEvent) error {
	s.got = append(s.got, ev)
	return nil
}

func TestRedisEventPublisher_Envelope(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisEventPublisher(NewClientWithRedis(db), channel.IndexEvents)

	ev := event.RecordsIndexedEvent{Origin: "a", Kind: "paper", IDs: []string{"p1"}}
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	payload, err := json.Marshal(RedisMessage{Type: ev.Type(), Event: body})
	require.NoError(t, err)

	mock.ExpectPublish(string(channel.IndexEvents), payload).SetVal(1)
	require.NoError(t, pub.Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisEventListener_Dispatch(t *testing.T) {
	db, _ := redismock.NewClientMock()
	l := NewRedisEventListener(logger.NewDiscardLogger(), NewClientWithRedis(db), event.Registry)
	sub := &recordingSubscriber{}
	RegisterEventSubscriber[event.RecordsIndexedEvent](l, sub)

	listener := l.(*redisEventListener)
	listener.handleMessage(context.Background(),
		`{"type":"RecordsIndexedEvent","event":{"origin":"b","kind":"dataset","ids":["d1","d2"]}}`)
	// other event types and junk are ignored
	listener.handleMessage(context.Background(), `{"type":"CacheInvalidatedEvent","event":{"origin":"b"}}`)
	listener.handleMessage(context.Background(), `{"type":"Unknown","event":{}}`)
	listener.handleMessage(context.Background(), `not json`)

	require.Len(t, sub.got, 1)
	assert.Equal(t, "dataset", sub.got[0].Kind)
	assert.Equal(t, []string{"d1", "d2"}, sub.got[0].IDs)
}

func TestNoopEventPublisher(t *testing.T) {
	assert.NoError(t, NewNoopEventPublisher().Publish(context.Background(), event.CacheInvalidatedEvent{}))
}
