package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/errors"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultBatchSize = 256

// IndexReport summarizes one indexing run.
type IndexReport struct {
	Kind      record.Kind   `json:"kind"`
	Requested int           `json:"requested"`
	Indexed   int           `json:"indexed"`
	Missing   []string      `json:"missing,omitempty"`
	Failed    []string      `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func (r *IndexReport) merge(o *IndexReport) {
	r.Requested += o.Requested
	r.Indexed += o.Indexed
	r.Missing = append(r.Missing, o.Missing...)
	r.Failed = append(r.Failed, o.Failed...)
}

// Indexer embeds records and makes them searchable without rebuilding the
// index.
type Indexer interface {
	IndexRecords(ctx context.Context, ids []string) (*IndexReport, error)
	Rebuild(ctx context.Context) (*IndexReport, error)
}

type IndexerDI struct {
	Kind        record.Kind
	Records     record.Repository
	Store       Store
	Index       search.Index
	Concurrency int
	Limiter     *rate.Limiter
	BatchSize   int
	Logger      *logrus.Logger
}

type indexer struct {
	kind        record.Kind
	records     record.Repository
	store       Store
	index       search.Index
	concurrency int
	limiter     *rate.Limiter
	batchSize   int
	logger      *logrus.Logger
}

func NewIndexer(di IndexerDI) Indexer {
	if di.Concurrency <= 0 {
		di.Concurrency = 8
	}
	if di.BatchSize <= 0 {
		di.BatchSize = defaultBatchSize
	}
	return &indexer{
		kind:        di.Kind,
		records:     di.Records,
		store:       di.Store,
		index:       di.Index,
		concurrency: di.Concurrency,
		limiter:     di.Limiter,
		batchSize:   di.BatchSize,
		logger:      di.Logger,
	}
}

// IndexRecords embeds the given records and publishes them to the store and
// the index. Unknown ids and individual embedding failures are reported, not
// returned; an unavailable provider aborts the run.
func (i *indexer) IndexRecords(ctx context.Context, ids []string) (*IndexReport, error) {
	start := time.Now()
	ids = dedupe(ids)
	report := &IndexReport{Kind: i.kind, Requested: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	vectors := make([][]float32, len(ids))
	missing := make([]bool, len(ids))
	failed := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, id := range ids {
		g.Go(func() error {
			if i.limiter != nil {
				if err := i.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			text, err := i.records.GetEmbeddingText(gctx, i.kind, id)
			if err != nil {
				if domain.IsNotFound(err) {
					missing[idx] = true
					return nil
				}
				return fmt.Errorf("load text of %s: %w", id, err)
			}
			vec, err := i.store.EmbedRecordText(gctx, text)
			if err != nil {
				if errors.Is(err, search.ErrUpstreamUnavailable) || gctx.Err() != nil {
					return err
				}
				i.logger.WithError(err).WithFields(logrus.Fields{
					"kind": i.kind,
					"id":   id,
				}).Warn("failed to embed record")
				failed[idx] = true
				return nil
			}
			vectors[idx] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	okIDs := make([]string, 0, len(ids))
	okVecs := make([][]float32, 0, len(ids))
	for idx, id := range ids {
		switch {
		case missing[idx]:
			report.Missing = append(report.Missing, id)
		case failed[idx]:
			report.Failed = append(report.Failed, id)
		default:
			okIDs = append(okIDs, id)
			okVecs = append(okVecs, vectors[idx])
		}
	}

	if len(okIDs) > 0 {
		if err := i.store.PutBatch(ctx, okIDs, okVecs); err != nil {
			return nil, err
		}
		if err := i.index.AddBatch(okIDs, okVecs); err != nil {
			return nil, err
		}
	}
	report.Indexed = len(okIDs)
	report.Duration = time.Since(start)
	return report, nil
}

// Rebuild embeds every record of the kind in batches.
func (i *indexer) Rebuild(ctx context.Context) (*IndexReport, error) {
	start := time.Now()
	ids, err := i.records.ListIDs(ctx, i.kind)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", i.kind, err)
	}

	total := &IndexReport{Kind: i.kind}
	for from := 0; from < len(ids); from += i.batchSize {
		to := min(from+i.batchSize, len(ids))
		report, err := i.IndexRecords(ctx, ids[from:to])
		if err != nil {
			return nil, err
		}
		total.merge(report)
		i.logger.WithFields(logrus.Fields{
			"kind":     i.kind,
			"progress": fmt.Sprintf("%d/%d", to, len(ids)),
		}).Debug("indexing batch done")
	}
	total.Duration = time.Since(start)

	i.logger.WithFields(logrus.Fields{
		"kind":     i.kind,
		"indexed":  total.Indexed,
		"missing":  len(total.Missing),
		"failed":   len(total.Failed),
		"duration": total.Duration.String(),
	}).Info("index rebuilt")
	return total, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
