package records

import (
	"context"
	"slices"
	"sync"

	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/errors"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

// MemoryRepository keeps records in process. It backs the JSON dump loader
// and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[record.Kind]map[string]*record.Record
}

var _ record.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(recs ...*record.Record) *MemoryRepository {
	r := &MemoryRepository{records: map[record.Kind]map[string]*record.Record{}}
	r.Add(recs...)
	return r
}

func (r *MemoryRepository) Add(recs ...*record.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		byID, ok := r.records[rec.Kind]
		if !ok {
			byID = map[string]*record.Record{}
			r.records[rec.Kind] = byID
		}
		byID[rec.ID] = rec
	}
}

func (r *MemoryRepository) GetRecord(_ context.Context, kind record.Kind, id string) (*record.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[kind][id]
	if !ok {
		return nil, domain.NewNotFoundError(string(kind), id)
	}
	return rec, nil
}

func (r *MemoryRepository) GetEmbeddingText(ctx context.Context, kind record.Kind, id string) (string, error) {
	rec, err := r.GetRecord(ctx, kind, id)
	if err != nil {
		return "", err
	}
	return rec.EmbeddingText(), nil
}

func (r *MemoryRepository) ListIDs(_ context.Context, kind record.Kind) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records[kind]))
	for id := range r.records[kind] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
