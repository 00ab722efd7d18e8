package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/expansion"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/planner"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/ranking"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	domainErrors "github.com/ya-paperswithcode/agentsearch/pkg/domain/errors"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/ya-paperswithcode/agentsearch/pkg/app/search")

type Manager interface {
	Search(ctx context.Context, req Request) (*Response, error)
	MultiSearch(ctx context.Context, req MultiRequest) (*MultiResponse, error)
	InvalidateCache(ctx context.Context) (int, error)
	Info() Info
}

// Backend is the per-kind half of the pipeline.
type Backend struct {
	Store  embedding.Store
	Index  domain.Index
	Engine expansion.Engine
	Ranker ranking.Ranker
}

type ManagerDI struct {
	Backends    map[record.Kind]Backend
	Records     record.Repository
	Planner     planner.Planner
	Cache       cache.ResponseCache
	Config      config.SearchConfig
	MaxVariants int
	Logger      *logrus.Logger
}

type manager struct {
	backends    map[record.Kind]Backend
	records     record.Repository
	planner     planner.Planner
	cache       cache.ResponseCache
	cfg         config.SearchConfig
	base        expansion.Options
	maxVariants int
	logger      *logrus.Logger
}

func NewManager(di ManagerDI) Manager {
	if di.MaxVariants <= 0 {
		di.MaxVariants = 1
	}
	return &manager{
		backends:    di.Backends,
		records:     di.Records,
		planner:     di.Planner,
		cache:       di.Cache,
		cfg:         di.Config,
		base:        expansion.OptionsFromConfig(di.Config),
		maxVariants: di.MaxVariants,
		logger:      di.Logger,
	}
}

// plan is a validated request.
type plan struct {
	query      string
	searchType string
	kind       record.Kind
	profile    string
	filters    domain.Filters
	limit      int
	variants   int
	opts       expansion.Options
	backend    Backend
}

func (m *manager) validate(req Request) (*plan, error) {
	query := planner.Normalize(req.Query)
	if query == "" {
		return nil, domain.InvalidInputf("query must not be empty")
	}
	if req.Limit <= 0 {
		return nil, domain.InvalidInputf("limit must be positive, got %d", req.Limit)
	}
	if m.cfg.MaxLimit > 0 && req.Limit > m.cfg.MaxLimit {
		return nil, domain.InvalidInputf("limit must be at most %d, got %d", m.cfg.MaxLimit, req.Limit)
	}
	if err := req.Overrides.Validate(); err != nil {
		return nil, err
	}
	searchType, kind, err := resolveType(req.SearchType, query)
	if err != nil {
		return nil, err
	}
	backend, ok := m.backends[kind]
	if !ok {
		return nil, domain.InvalidInputf("%s are not indexed", kind.Plural())
	}
	profile, err := resolveProfile(req.Profile, query, req.Overrides)
	if err != nil {
		return nil, err
	}

	variants := m.maxVariants
	if req.Overrides.Variants > 0 {
		variants = req.Overrides.Variants
	}
	return &plan{
		query:      query,
		searchType: searchType,
		kind:       kind,
		profile:    profile,
		filters:    req.Filters.Normalize(),
		limit:      req.Limit,
		variants:   variants,
		opts:       expansionOptions(m.base, profile, m.cfg.BasicMaxDepth, req.Overrides),
		backend:    backend,
	}, nil
}

func (m *manager) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	p, err := m.validate(req)
	if err != nil {
		prometheus.SearchRequestTotal.WithLabelValues("unknown", statusOf(err)).Inc()
		return nil, err
	}

	if m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("kind", string(p.kind)),
		attribute.String("search_type", p.searchType),
		attribute.String("profile", p.profile),
		attribute.Int("limit", p.limit),
		attribute.Int("max_depth", p.opts.MaxDepth),
	))
	defer span.End()

	resp, err := m.search(ctx, p, start)
	prometheus.SearchRequestTotal.WithLabelValues(string(p.kind), statusOf(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	prometheus.ObserveStage(string(p.kind), "total", time.Since(start))
	span.SetAttributes(attribute.Int("results", resp.Total), attribute.Bool("cached", resp.Cached))
	return resp, nil
}

func (m *manager) search(ctx context.Context, p *plan, start time.Time) (*Response, error) {
	key := cacheKey(p.kind, p.searchType, p.query, p.filters, p.limit, p.variants, p.opts,
		p.backend.Index.Version(), p.backend.Store.ModelVersion())
	if resp, ok := m.cached(ctx, key); ok {
		resp.SearchID = uuid.NewString()
		resp.Cached = true
		resp.Duration = time.Since(start)
		return resp, nil
	}

	stage := time.Now()
	queries, err := m.planner.Plan(ctx, p.query, p.variants)
	if err != nil {
		return nil, fmt.Errorf("plan query: %w", err)
	}
	prometheus.ObserveStage(string(p.kind), "plan", time.Since(stage))

	stage = time.Now()
	queries, err = m.embedQueries(ctx, p.backend.Store, queries)
	if err != nil {
		return nil, err
	}
	prometheus.ObserveStage(string(p.kind), "embed", time.Since(stage))

	stage = time.Now()
	expanded, err := p.backend.Engine.Expand(ctx, queries, p.opts)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}
	prometheus.ObserveStage(string(p.kind), "expand", time.Since(stage))

	stage = time.Now()
	records, vectors, err := m.hydrate(ctx, p.kind, p.backend.Store, expanded.Candidates)
	if err != nil {
		return nil, err
	}
	prometheus.ObserveStage(string(p.kind), "hydrate", time.Since(stage))

	candidates := make([]domain.Candidate, 0, len(records))
	for _, c := range expanded.Candidates {
		r, ok := records[c.ID]
		if !ok || !p.filters.Match(r) {
			continue
		}
		candidates = append(candidates, c)
	}

	stage = time.Now()
	results := p.backend.Ranker.Rank(ctx, ranking.Input{
		Query:       p.query,
		Candidates:  candidates,
		QueryVector: queries[0].Vector,
		Vectors:     vectors,
		Records:     records,
		Limit:       p.limit,
	})
	prometheus.ObserveStage(string(p.kind), "rank", time.Since(stage))
	if results == nil {
		results = []domain.ScoredResult{}
	}

	variants := make([]string, len(queries))
	for i, q := range queries {
		variants[i] = q.Text
	}
	resp := &Response{
		SearchID:   uuid.NewString(),
		Query:      p.query,
		SearchType: p.searchType,
		Kind:       p.kind,
		Profile:    p.profile,
		Results:    results,
		Total:      len(results),
		Variants:   variants,
		Stats:      expanded.Stats,
		Timestamp:  time.Now().UTC(),
		Duration:   time.Since(start),
	}
	m.store(ctx, key, resp)

	m.logger.WithFields(logrus.Fields{
		"search_id":   resp.SearchID,
		"kind":        p.kind,
		"variants":    len(queries),
		"candidates":  len(expanded.Candidates),
		"results":     resp.Total,
		"layers":      resp.Stats.Layers,
		"halt_reason": resp.Stats.HaltReason,
		"duration":    resp.Duration.String(),
	}).Debug("search finished")
	return resp, nil
}

// embedQueries fills in query vectors. The original query must embed; other
// variants that fail are dropped.
func (m *manager) embedQueries(ctx context.Context, store embedding.Store, queries []domain.Query) ([]domain.Query, error) {
	errs := make([]error, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.base.Parallelism, 1))
	for i := range queries {
		g.Go(func() error {
			vec, err := store.Embed(gctx, queries[i].Text)
			if err != nil {
				errs[i] = err
				return nil
			}
			queries[i].Vector = vec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if errs[0] != nil {
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrUpstreamUnavailable, errs[0])
	}
	out := queries[:0]
	for i, q := range queries {
		if errs[i] != nil {
			m.logger.WithError(errs[i]).WithField("variant", q.Text).Warn("dropping query variant")
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// hydrate loads the records and vectors of every candidate. Ids the record
// store does not know are skipped; a store that fails for every candidate is
// reported as unavailable.
func (m *manager) hydrate(
	ctx context.Context,
	kind record.Kind,
	store embedding.Store,
	candidates []domain.Candidate,
) (map[string]*record.Record, map[string][]float32, error) {
	records := make(map[string]*record.Record, len(candidates))
	vectors := make(map[string][]float32, len(candidates))
	if len(candidates) == 0 {
		return records, vectors, nil
	}

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.base.Parallelism, 1))
	for _, c := range candidates {
		g.Go(func() error {
			r, err := m.records.GetRecord(gctx, kind, c.ID)
			if err != nil {
				if domainErrors.IsNotFound(err) {
					m.logger.WithField("id", c.ID).Debug("candidate has no record")
					return nil
				}
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}
			vec, vecErr := store.GetVector(gctx, c.ID)

			mu.Lock()
			defer mu.Unlock()
			records[c.ID] = r
			if vecErr == nil {
				vectors[c.ID] = vec
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if failures > 0 {
		if len(records) == 0 {
			return nil, nil, fmt.Errorf("load records: %w: %w", domain.ErrUpstreamUnavailable, lastErr)
		}
		m.logger.WithError(lastErr).WithField("failed", failures).Warn("some records could not be loaded")
	}
	return records, vectors, nil
}

func (m *manager) cached(ctx context.Context, key string) (*Response, bool) {
	if m.cache == nil {
		return nil, false
	}
	raw, ok := m.cache.Get(ctx, key)
	prometheus.ObserveCache(ok)
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		m.logger.WithError(err).Warn("discarding unreadable cached response")
		return nil, false
	}
	return &resp, true
}

func (m *manager) store(ctx context.Context, key string, resp *Response) {
	if m.cache == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		m.logger.WithError(err).Warn("failed to encode response for cache")
		return
	}
	m.cache.Set(ctx, key, raw)
}

func (m *manager) MultiSearch(ctx context.Context, req MultiRequest) (*MultiResponse, error) {
	start := time.Now()
	types := req.SearchTypes
	if len(types) == 0 {
		types = []string{TypePapers, TypeDatasets, TypeMethods}
	}
	seen := make(map[string]bool, len(types))
	unique := make([]string, 0, len(types))
	for _, t := range types {
		resolved, _, err := resolveType(t, req.Query)
		if err != nil {
			return nil, err
		}
		if t == "" || t == TypeAuto {
			return nil, domain.InvalidInputf("multi search needs concrete search types")
		}
		if !seen[resolved] {
			seen[resolved] = true
			unique = append(unique, resolved)
		}
	}

	responses := make([]*Response, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range unique {
		g.Go(func() error {
			resp, err := m.Search(gctx, Request{
				Query:      req.Query,
				SearchType: t,
				Filters:    req.Filters,
				Limit:      req.Limit,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &MultiResponse{
		Query:   planner.Normalize(req.Query),
		Results: make(map[string]*Response, len(unique)),
	}
	for i, t := range unique {
		out.Results[t] = responses[i]
	}
	out.Duration = time.Since(start)
	return out, nil
}

func (m *manager) InvalidateCache(ctx context.Context) (int, error) {
	if m.cache == nil {
		return 0, nil
	}
	return m.cache.Clear(ctx)
}

func (m *manager) Info() Info {
	info := Info{
		SearchTypes: []string{TypeAuto, TypePapers, TypeDatasets, TypeMethods},
		Strategy:    map[string]string{},
		MaxDepth:    m.cfg.MaxDepth,
		BasicDepth:  m.cfg.BasicMaxDepth,
		Floors:      slices.Clone(m.cfg.Floors),
		MaxVariants: m.maxVariants,
		MaxLimit:    m.cfg.MaxLimit,
	}
	for _, kind := range record.Kinds {
		b, ok := m.backends[kind]
		if !ok {
			continue
		}
		info.Kinds = append(info.Kinds, KindInfo{
			Kind:         kind,
			Vectors:      b.Index.Len(),
			ModelVersion: b.Store.ModelVersion(),
		})
		info.Strategy[string(kind)] = b.Ranker.Strategy()
	}
	return info
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
