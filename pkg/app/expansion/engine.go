package expansion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/ya-paperswithcode/agentsearch/pkg/app/expansion")

type HaltReason string

const (
	HaltMaxDepth      HaltReason = "max_depth"
	HaltExhausted     HaltReason = "exhausted"
	HaltMaxCandidates HaltReason = "max_candidates"
)

type Stats struct {
	Layers     int        `json:"layers"`
	PerLayer   []int      `json:"per_layer"`
	Dropped    int        `json:"dropped"`
	HaltReason HaltReason `json:"halt_reason"`
}

type Result struct {
	// Candidates are ordered by layer, then by discovery order.
	Candidates []search.Candidate
	Stats      Stats
}

// VectorSource resolves the stored vector of a discovered record.
type VectorSource interface {
	GetVector(ctx context.Context, id string) ([]float32, error)
}

// Observer receives per-layer counters, e.g. for metrics.
type Observer interface {
	ObserveLayer(layer, admitted int)
	ObserveDropped(layer, dropped int)
}

type Engine interface {
	Expand(ctx context.Context, queries []search.Query, opts Options) (*Result, error)
}

type EngineDI struct {
	Index    search.Index
	Vectors  VectorSource
	Observer Observer
	Logger   *logrus.Logger
}

type engine struct {
	index    search.Index
	vectors  VectorSource
	observer Observer
	logger   *logrus.Logger
}

func NewEngine(di EngineDI) Engine {
	return &engine{
		index:    di.Index,
		vectors:  di.Vectors,
		observer: di.Observer,
		logger:   di.Logger,
	}
}

// lookup is the outcome of one similarity call. Failed lookups carry err and
// no neighbors.
type lookup struct {
	parent    search.Candidate
	neighbors []search.Neighbor
	err       error
}

func (e *engine) Expand(ctx context.Context, queries []search.Query, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	floors := opts.floors()
	for i, q := range queries {
		if len(q.Vector) == 0 {
			return nil, search.InvalidInputf("query %d has no vector", i)
		}
	}

	ctx, span := tracer.Start(ctx, "expansion.Expand", trace.WithAttributes(
		attribute.Int("queries", len(queries)),
		attribute.Int("max_depth", opts.MaxDepth),
	))
	defer span.End()

	a := newArena()
	stats := Stats{}

	seeded, err := e.seedLayer(ctx, queries, opts, floors[0], a, &stats)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch {
	case a.len() >= opts.MaxCandidates && opts.MaxCandidates > 0:
		stats.HaltReason = HaltMaxCandidates
	case seeded == 0:
		stats.HaltReason = HaltExhausted
	}

	for layer := 1; stats.HaltReason == "" && layer <= opts.MaxDepth; layer++ {
		admitted, err := e.expandLayer(ctx, layer, opts, floors[layer], a, &stats)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		switch {
		case opts.MaxCandidates > 0 && a.len() >= opts.MaxCandidates:
			stats.HaltReason = HaltMaxCandidates
		case admitted == 0:
			stats.HaltReason = HaltExhausted
		}
	}
	if stats.HaltReason == "" {
		stats.HaltReason = HaltMaxDepth
	}

	span.SetAttributes(
		attribute.Int("candidates", a.len()),
		attribute.Int("dropped", stats.Dropped),
		attribute.String("halt_reason", string(stats.HaltReason)),
	)
	return &Result{Candidates: a.candidates(), Stats: stats}, nil
}

func (e *engine) seedLayer(
	ctx context.Context,
	queries []search.Query,
	opts Options,
	floor float64,
	a *arena,
	stats *Stats,
) (int, error) {
	ctx, span := tracer.Start(ctx, "expansion.layer", trace.WithAttributes(
		attribute.Int("layer", 0),
		attribute.Int("frontier", len(queries)),
	))
	defer span.End()

	results := make([]lookup, len(queries))
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, q := range queries {
		g.Go(func() error {
			results[i].neighbors, results[i].err = e.topK(ctx, q.Vector, opts.SeedTopK, nil, opts.LookupTimeout)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	failed := 0
	var lastErr error
	for i, r := range results {
		if r.err != nil {
			failed++
			lastErr = r.err
			e.logger.WithError(r.err).WithFields(logrus.Fields{
				"layer": 0,
				"query": i,
			}).Warn("seed lookup failed")
		}
	}
	if len(queries) > 0 && failed == len(queries) {
		return 0, fmt.Errorf("every seed lookup failed: %w: %w", search.ErrUpstreamUnavailable, lastErr)
	}
	stats.Dropped += failed

	admitted := 0
merge:
	for i, r := range results {
		for _, n := range r.neighbors {
			if n.Similarity < floor {
				continue
			}
			if opts.MaxCandidates > 0 && a.len() >= opts.MaxCandidates && !a.has(n.ID) {
				break merge
			}
			if a.admit(n.ID, 0, n.Similarity, seedPath(i)) {
				admitted++
			}
		}
	}
	e.record(stats, 0, admitted, failed)
	span.SetAttributes(attribute.Int("admitted", admitted), attribute.Int("dropped", failed))
	return admitted, nil
}

func (e *engine) expandLayer(
	ctx context.Context,
	layer int,
	opts Options,
	floor float64,
	a *arena,
	stats *Stats,
) (int, error) {
	frontier := a.frontier(layer-1, opts.ExpandFrontier)
	ctx, span := tracer.Start(ctx, "expansion.layer", trace.WithAttributes(
		attribute.Int("layer", layer),
		attribute.Int("frontier", len(frontier)),
	))
	defer span.End()

	exclude := a.ids()
	results := make([]lookup, len(frontier))
	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, parent := range frontier {
		results[i].parent = parent
		g.Go(func() error {
			results[i].neighbors, results[i].err = e.expandOne(ctx, parent, opts, exclude)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	failed, unavailable := 0, 0
	var lastErr error
	for _, r := range results {
		if r.err != nil {
			failed++
			if errors.Is(r.err, search.ErrUpstreamUnavailable) {
				unavailable++
				lastErr = r.err
			}
			e.logger.WithError(&search.CandidateError{ID: r.parent.ID, Layer: layer, Err: r.err}).
				WithFields(logrus.Fields{"layer": layer, "candidate": r.parent.ID}).
				Warn("dropping candidate from expansion")
		}
	}
	// An index that stopped answering mid-search fails the search rather
	// than returning the shallower layers as if they were complete.
	if len(frontier) > 0 && unavailable == len(frontier) {
		return 0, fmt.Errorf("every layer %d lookup failed: %w", layer, lastErr)
	}
	stats.Dropped += failed

	admitted := 0
merge:
	for _, r := range results {
		for _, n := range r.neighbors {
			if n.Similarity < floor {
				continue
			}
			if opts.MaxCandidates > 0 && a.len() >= opts.MaxCandidates && !a.has(n.ID) {
				break merge
			}
			if a.admit(n.ID, layer, n.Similarity, childPath(r.parent)) {
				admitted++
			}
		}
	}
	e.record(stats, layer, admitted, failed)
	span.SetAttributes(attribute.Int("admitted", admitted), attribute.Int("dropped", failed))
	return admitted, nil
}

func (e *engine) expandOne(ctx context.Context, parent search.Candidate, opts Options, exclude []string) ([]search.Neighbor, error) {
	vecCtx, cancel := withLookupTimeout(ctx, opts.LookupTimeout)
	vec, err := e.vectors.GetVector(vecCtx, parent.ID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	return e.topK(ctx, vec, opts.ExpandTopK, exclude, opts.LookupTimeout)
}

func (e *engine) topK(ctx context.Context, vec []float32, k int, exclude []string, timeout time.Duration) ([]search.Neighbor, error) {
	lookupCtx, cancel := withLookupTimeout(ctx, timeout)
	defer cancel()
	neighbors, err := e.index.TopK(lookupCtx, vec, k, exclude)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("lookup timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	return neighbors, nil
}

func (e *engine) record(stats *Stats, layer, admitted, dropped int) {
	stats.Layers = layer + 1
	stats.PerLayer = append(stats.PerLayer, admitted)
	if e.observer != nil {
		e.observer.ObserveLayer(layer, admitted)
		if dropped > 0 {
			e.observer.ObserveDropped(layer, dropped)
		}
	}
}

func withLookupTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
