package dependency_container

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	appEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/expansion"
	appSearch "github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	domainEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/httpx"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/index"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/prometheus"
	providersFactory "github.com/ya-paperswithcode/agentsearch/pkg/infra/providers/factory"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/snapshot"
	"golang.org/x/time/rate"
)

// Kinds lists every record kind the service indexes.
var Kinds = []record.Kind{record.KindPaper, record.KindDataset}

// KindDeps is everything built for one record kind.
type KindDeps struct {
	Store   appEmbedding.Store
	Index   *index.Flat
	Indexer appEmbedding.Indexer
	Backend appSearch.Backend
}

type BackendsDI struct {
	Cfg          *config.Config
	Logger       *logrus.Logger
	Creator      domainEmbedding.Creator
	Records      record.Repository
	VectorRepo   domainEmbedding.Repository
	Snapshots    *snapshot.FileStore
	ModelVersion string
	Providers    providersFactory.ProviderLocator
}

// NewKindDeps builds the store, index and pipeline of each kind. Indexing
// shares one rate limiter so both kinds together respect the provider quota.
func NewKindDeps(di BackendsDI) (map[record.Kind]*KindDeps, error) {
	ranker, err := NewRanker(di.Cfg.Search.Scoring, di.Providers, di.Logger)
	if err != nil {
		return nil, err
	}
	queryCache := cache.NewTTLMap[[]float32](di.Cfg.Embedding.QueryCacheTTL)
	limiter := rate.NewLimiter(rate.Limit(di.Cfg.Embedding.RequestsPerSecond), di.Cfg.Embedding.Concurrency)

	out := make(map[record.Kind]*KindDeps, len(Kinds))
	for _, kind := range Kinds {
		store := appEmbedding.NewStore(appEmbedding.StoreDI{
			Kind:         kind,
			Creator:      di.Creator,
			Model:        di.Cfg.Embedding.Model,
			ModelVersion: di.ModelVersion,
			Repository:   di.VectorRepo,
			QueryCache:   queryCache,
			Timeout:      di.Cfg.Embedding.Timeout,
			Logger:       di.Logger,
		})
		flat := index.NewFlat(di.Cfg.Embedding.Dimension)
		guarded := index.NewGuarded(flat, httpx.NewCircuitBreaker(
			"index-"+string(kind),
			di.Cfg.Search.BreakerTimeout,
			di.Cfg.Search.BreakerFailure,
		), di.Cfg.Search.LookupTimeout)

		out[kind] = &KindDeps{
			Store: store,
			Index: flat,
			Indexer: appEmbedding.NewIndexer(appEmbedding.IndexerDI{
				Kind:        kind,
				Records:     di.Records,
				Store:       store,
				Index:       flat,
				Concurrency: di.Cfg.Embedding.Concurrency,
				Limiter:     limiter,
				Logger:      di.Logger,
			}),
			Backend: appSearch.Backend{
				Store: store,
				Index: guarded,
				Engine: expansion.NewEngine(expansion.EngineDI{
					Index:    guarded,
					Vectors:  store,
					Observer: prometheus.ExpansionObserver{},
					Logger:   di.Logger,
				}),
				Ranker: ranker,
			},
		}
	}
	return out, nil
}

// WarmUp fills every kind from its snapshot. A missing or stale snapshot is
// rebuilt from the record store when buildOnStart is set and left empty
// otherwise.
func WarmUp(
	ctx context.Context,
	deps map[record.Kind]*KindDeps,
	snapshots *snapshot.FileStore,
	buildOnStart bool,
	logger *logrus.Logger,
) error {
	for _, kind := range Kinds {
		d, ok := deps[kind]
		if !ok {
			continue
		}
		err := loadSnapshot(d, snapshots, kind)
		switch {
		case err == nil:
		case buildOnStart:
			logger.WithError(err).WithField("kind", kind).Info("snapshot unusable, rebuilding index")
			if _, err := d.Indexer.Rebuild(ctx); err != nil {
				return fmt.Errorf("rebuild %s index: %w", kind, err)
			}
			if _, err := snapshots.Save(d.Store.Snapshot()); err != nil {
				logger.WithError(err).WithField("kind", kind).Warn("failed to save snapshot")
			}
		case errors.Is(err, os.ErrNotExist):
			logger.WithField("kind", kind).Warn("no snapshot found, index starts empty")
		default:
			return fmt.Errorf("load %s snapshot: %w", kind, err)
		}
		prometheus.IndexSize.WithLabelValues(string(kind)).Set(float64(d.Index.Len()))
	}
	return nil
}

func loadSnapshot(d *KindDeps, snapshots *snapshot.FileStore, kind record.Kind) error {
	snap, err := snapshots.Load(kind)
	if err != nil {
		return err
	}
	if err := d.Store.Load(snap); err != nil {
		return err
	}
	return d.Index.AddBatch(snap.IDs, snap.Vectors)
}
