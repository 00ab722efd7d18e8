package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	domainEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"golang.org/x/sync/singleflight"
)

const defaultEmbedTimeout = 30 * time.Second

// Store maps record ids to vectors and embeds free text. Vectors handed out by
// the store are shared and must not be modified.
type Store interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedRecordText(ctx context.Context, text string) ([]float32, error)
	GetVector(ctx context.Context, id string) ([]float32, error)
	Put(ctx context.Context, id string, vector []float32) error
	PutBatch(ctx context.Context, ids []string, vectors [][]float32) error
	Load(snapshot *domainEmbedding.Snapshot) error
	Snapshot() *domainEmbedding.Snapshot
	ModelVersion() string
	Len() int
}

type StoreDI struct {
	Kind         record.Kind
	Creator      domainEmbedding.Creator
	Model        string
	ModelVersion string
	Repository   domainEmbedding.Repository
	QueryCache   *cache.TTLMap[[]float32]
	Timeout      time.Duration
	Logger       *logrus.Logger
}

type store struct {
	kind       record.Kind
	creator    domainEmbedding.Creator
	model      string
	version    string
	repo       domainEmbedding.Repository
	queryCache *cache.TTLMap[[]float32]
	timeout    time.Duration
	logger     *logrus.Logger

	sf      singleflight.Group
	mu      sync.Mutex
	vectors atomic.Pointer[map[string][]float32]
}

func NewStore(di StoreDI) Store {
	if di.Timeout <= 0 {
		di.Timeout = defaultEmbedTimeout
	}
	s := &store{
		kind:       di.Kind,
		creator:    di.Creator,
		model:      di.Model,
		version:    di.ModelVersion,
		repo:       di.Repository,
		queryCache: di.QueryCache,
		timeout:    di.Timeout,
		logger:     di.Logger,
	}
	empty := map[string][]float32{}
	s.vectors.Store(&empty)
	return s
}

func (s *store) ModelVersion() string {
	return s.version
}

func (s *store) Len() int {
	return len(*s.vectors.Load())
}

// Embed returns the unit vector of a query text. Results are kept in the
// query cache. Concurrent calls for the same text share one provider request;
// a caller giving up does not cancel it for the others.
func (s *store) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text, s.queryCache)
}

// EmbedRecordText embeds record text during indexing and bypasses the query
// cache.
func (s *store) EmbedRecordText(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, text, nil)
}

func (s *store) embed(ctx context.Context, text string, queryCache *cache.TTLMap[[]float32]) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embed: empty text")
	}
	key := s.version + "\x00" + text

	if queryCache != nil {
		if v, ok := queryCache.Get(key); ok {
			return v, nil
		}
	}

	ch := s.sf.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		e, err := s.creator.Generate(callCtx, text, s.model)
		if err != nil {
			return nil, err
		}
		if e == nil || len(e.Value) == 0 {
			return nil, domainEmbedding.ErrEmptyEmbedding
		}
		vec := make([]float32, len(e.Value))
		copy(vec, e.Value)
		domainEmbedding.Normalize(vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("embed: %w", res.Err)
		}
		vec, ok := res.Val.([]float32)
		if !ok {
			return nil, fmt.Errorf("embed: unexpected result type %T", res.Val)
		}
		if queryCache != nil {
			queryCache.Set(key, vec)
		}
		return vec, nil
	}
}

// GetVector returns the stored vector of id, falling back to the persistent
// repository for ids inserted by another process.
func (s *store) GetVector(ctx context.Context, id string) ([]float32, error) {
	if v, ok := (*s.vectors.Load())[id]; ok {
		return v, nil
	}
	if s.repo == nil {
		return nil, domainEmbedding.ErrNotFound
	}

	e, err := s.repo.GetByTargetID(ctx, s.kind, id)
	if err != nil {
		if errors.Is(err, domainEmbedding.ErrNotFound) {
			return nil, domainEmbedding.ErrNotFound
		}
		return nil, fmt.Errorf("get vector %s: %w", id, err)
	}
	if e.ModelVersion != s.version {
		return nil, fmt.Errorf("vector %s built with %q, store uses %q: %w",
			id, e.ModelVersion, s.version, domainEmbedding.ErrModelMismatch)
	}

	vec := make([]float32, len(e.Value))
	copy(vec, e.Value)
	domainEmbedding.Normalize(vec)
	s.publish([]string{id}, [][]float32{vec})
	return vec, nil
}

func (s *store) Put(ctx context.Context, id string, vector []float32) error {
	return s.PutBatch(ctx, []string{id}, [][]float32{vector})
}

// PutBatch publishes the vectors in one copy-on-write step and writes them
// through to the repository when one is configured.
func (s *store) PutBatch(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("put: %d ids for %d vectors", len(ids), len(vectors))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("put %s: %w", ids[i], domainEmbedding.ErrEmptyEmbedding)
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		domainEmbedding.Normalize(vec)
		normalized[i] = vec
	}

	if s.repo != nil {
		now := time.Now()
		for i, id := range ids {
			err := s.repo.Store(ctx, s.kind, id, &domainEmbedding.Embedding{
				EntityID:     id,
				Value:        normalized[i],
				ModelVersion: s.version,
				CreatedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("persist vector %s: %w", id, err)
			}
		}
	}

	s.publish(ids, normalized)
	return nil
}

func (s *store) publish(ids []string, vectors [][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.vectors.Load()
	next := make(map[string][]float32, len(cur)+len(ids))
	for k, v := range cur {
		next[k] = v
	}
	for i, id := range ids {
		next[id] = vectors[i]
	}
	s.vectors.Store(&next)
}

// Load replaces the store contents with snapshot. A snapshot built under a
// different model version is rejected so the caller can rebuild.
func (s *store) Load(snapshot *domainEmbedding.Snapshot) error {
	if snapshot.ModelVersion != s.version {
		return fmt.Errorf("snapshot built with %q, store uses %q: %w",
			snapshot.ModelVersion, s.version, domainEmbedding.ErrModelMismatch)
	}
	if len(snapshot.IDs) != len(snapshot.Vectors) {
		return fmt.Errorf("snapshot has %d ids for %d vectors", len(snapshot.IDs), len(snapshot.Vectors))
	}

	next := make(map[string][]float32, len(snapshot.IDs))
	for i, id := range snapshot.IDs {
		next[id] = snapshot.Vectors[i]
	}

	s.mu.Lock()
	s.vectors.Store(&next)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"kind":    s.kind,
		"vectors": len(next),
		"model":   s.version,
	}).Info("embedding snapshot loaded")
	return nil
}

// Snapshot exports the current contents ordered by id.
func (s *store) Snapshot() *domainEmbedding.Snapshot {
	cur := *s.vectors.Load()
	snap := &domainEmbedding.Snapshot{
		Kind:         s.kind,
		ModelVersion: s.version,
		CreatedAt:    time.Now().UTC(),
		IDs:          make([]string, 0, len(cur)),
		Vectors:      make([][]float32, 0, len(cur)),
	}
	for id := range cur {
		snap.IDs = append(snap.IDs, id)
	}
	slices.Sort(snap.IDs)
	for _, id := range snap.IDs {
		snap.Vectors = append(snap.Vectors, cur[id])
	}
	if len(snap.Vectors) > 0 {
		snap.Dimension = len(snap.Vectors[0])
	}
	return snap
}
