package event

type CacheInvalidatedEvent struct {
	Origin string `json:"origin"`
}

func (e CacheInvalidatedEvent) Type() string {
	return CacheInvalidatedEventType
}
