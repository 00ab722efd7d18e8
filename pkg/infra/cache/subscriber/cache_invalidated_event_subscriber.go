package subscriber

import (
	"context"

	"github.com/sirupsen/logrus"
	infraCache "github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

type CacheInvalidatedEventSubscriber struct {
	logger   *logrus.Logger
	instance string
	cache    infraCache.ResponseCache
}

func NewCacheInvalidatedEventSubscriber(
	logger *logrus.Logger,
	instance string,
	cache infraCache.ResponseCache,
) infraCache.EventSubscriber[event.CacheInvalidatedEvent] {
	return &CacheInvalidatedEventSubscriber{
		logger:   logger,
		instance: instance,
		cache:    cache,
	}
}

func (s *CacheInvalidatedEventSubscriber) OnEvent(ctx context.Context, evt event.CacheInvalidatedEvent) error {
	if evt.Origin == s.instance {
		return nil
	}
	n, err := s.cache.Clear(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"origin":  evt.Origin,
		"entries": n,
	}).Debug("response cache invalidated by another replica")
	return nil
}
