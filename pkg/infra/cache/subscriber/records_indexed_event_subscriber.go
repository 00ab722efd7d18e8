package subscriber

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	infraCache "github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache/event"
)

// VectorSource resolves a vector by id, reading through to the shared
// embedding repository.
type VectorSource interface {
	GetVector(ctx context.Context, id string) ([]float32, error)
}

// KindTarget is where vectors of one kind are published locally.
type KindTarget struct {
	Vectors VectorSource
	Index   search.Index
}

type RecordsIndexedEventSubscriber struct {
	logger   *logrus.Logger
	instance string
	targets  map[record.Kind]KindTarget
	cache    infraCache.ResponseCache
}

// NewRecordsIndexedEventSubscriber makes records indexed on another replica
// searchable here. Events from instance itself are ignored.
func NewRecordsIndexedEventSubscriber(
	logger *logrus.Logger,
	instance string,
	targets map[record.Kind]KindTarget,
	cache infraCache.ResponseCache,
) infraCache.EventSubscriber[event.RecordsIndexedEvent] {
	return &RecordsIndexedEventSubscriber{
		logger:   logger,
		instance: instance,
		targets:  targets,
		cache:    cache,
	}
}

func (s *RecordsIndexedEventSubscriber) OnEvent(ctx context.Context, evt event.RecordsIndexedEvent) error {
	if evt.Origin == s.instance {
		return nil
	}
	kind, err := record.ParseKind(evt.Kind)
	if err != nil {
		return err
	}
	target, ok := s.targets[kind]
	if !ok {
		return fmt.Errorf("no index for kind %s", kind)
	}

	ids := make([]string, 0, len(evt.IDs))
	vecs := make([][]float32, 0, len(evt.IDs))
	for _, id := range evt.IDs {
		vec, err := target.Vectors.GetVector(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"kind": kind,
				"id":   id,
			}).Warn("skipping vector announced by another replica")
			continue
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
	}
	if len(ids) > 0 {
		if err := target.Index.AddBatch(ids, vecs); err != nil {
			return err
		}
	}
	if s.cache != nil {
		if _, err := s.cache.Clear(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to clear response cache")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"kind":   kind,
		"origin": evt.Origin,
		"added":  len(ids),
	}).Debug("applied remote index update")
	return nil
}
