package event

import "reflect"

type Event interface {
	Type() string
}

var (
	RecordsIndexedEventType   = "RecordsIndexedEvent"
	CacheInvalidatedEventType = "CacheInvalidatedEvent"
)

var Registry = map[string]reflect.Type{
	RecordsIndexedEventType:   reflect.TypeOf(RecordsIndexedEvent{}),
	CacheInvalidatedEventType: reflect.TypeOf(CacheInvalidatedEvent{}),
}
