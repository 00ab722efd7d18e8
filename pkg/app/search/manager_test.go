package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/expansion"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/planner"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/ranking"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	domainEmbedding "github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/cache"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/embedding/hashing"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/index"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/records"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		MaxDepth:       2,
		BasicMaxDepth:  1,
		SeedTopK:       50,
		ExpandTopK:     10,
		ExpandFrontier: 20,
		MaxCandidates:  500,
		Parallelism:    4,
		LookupTimeout:  time.Second,
		MaxLimit:       200,
		Scoring: config.ScoringConfig{
			Strategy:    ranking.StrategyWeighted,
			QueryWeight: 0.5,
			LayerDecay:  0.9,
			BoostWeight: 0.05,
		},
	}
}

type fixture struct {
	repo     *records.MemoryRepository
	indexers map[record.Kind]embedding.Indexer
	backends map[record.Kind]Backend
	flats    map[record.Kind]*index.Flat
	stores   map[record.Kind]embedding.Store
}

func newFixture(t *testing.T, recs ...*record.Record) *fixture {
	t.Helper()
	f := &fixture{
		repo:     records.NewMemoryRepository(recs...),
		indexers: map[record.Kind]embedding.Indexer{},
		backends: map[record.Kind]Backend{},
		flats:    map[record.Kind]*index.Flat{},
		stores:   map[record.Kind]embedding.Store{},
	}
	ranker, err := ranking.NewRanker(testSearchConfig().Scoring)
	require.NoError(t, err)

	for _, kind := range record.Kinds {
		store := embedding.NewStore(embedding.StoreDI{
			Kind:         kind,
			Creator:      hashing.NewHashingEmbeddingService(64),
			Model:        "feature-hashing",
			ModelVersion: "feature-hashing-64",
			QueryCache:   cache.NewTTLMap[[]float32](time.Minute),
			Logger:       testLogger(),
		})
		flat := index.NewFlat(0)
		f.stores[kind] = store
		f.flats[kind] = flat
		f.indexers[kind] = embedding.NewIndexer(embedding.IndexerDI{
			Kind:    kind,
			Records: f.repo,
			Store:   store,
			Index:   flat,
			Logger:  testLogger(),
		})
		f.backends[kind] = Backend{
			Store:  store,
			Index:  flat,
			Engine: expansion.NewEngine(expansion.EngineDI{Index: flat, Vectors: store, Logger: testLogger()}),
			Ranker: ranker,
		}
	}
	return f
}

func (f *fixture) index(t *testing.T) {
	t.Helper()
	for kind, ix := range f.indexers {
		_, err := ix.Rebuild(context.Background())
		require.NoError(t, err, kind)
	}
}

func (f *fixture) manager(rc cache.ResponseCache) Manager {
	return NewManager(ManagerDI{
		Backends:    f.backends,
		Records:     f.repo,
		Planner:     planner.NewHeuristicPlanner(),
		Cache:       rc,
		Config:      testSearchConfig(),
		MaxVariants: 3,
		Logger:      testLogger(),
	})
}

func paper(id, title string, tasks ...string) *record.Record {
	return &record.Record{
		ID:       id,
		Kind:     record.KindPaper,
		Title:    title,
		Metadata: map[string][]string{record.MetaTask: tasks},
	}
}

func graphPapers() []*record.Record {
	topics := []string{
		"graph neural networks for node classification",
		"graph attention networks",
		"message passing neural networks on molecular graphs",
		"graph convolutional networks semi supervised learning",
		"neural networks for graph classification",
	}
	var out []*record.Record
	for i := 0; i < 20; i++ {
		title := fmt.Sprintf("%s part %d", topics[i%len(topics)], i)
		task := "Node Classification"
		if i%2 == 1 {
			task = "Graph Classification"
		}
		out = append(out, paper(fmt.Sprintf("p%02d", i), title, task))
	}
	return out
}

func resultIDs(rs []domain.ScoredResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	resp, err := f.manager(nil).Search(context.Background(), Request{
		Query:      "graph neural networks",
		SearchType: TypePapers,
		Limit:      10,
	})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.Total)
	assert.NotEmpty(t, resp.SearchID)
}

type failingIndex struct {
	domain.Index
}

func (failingIndex) TopK(context.Context, []float32, int, []string) ([]domain.Neighbor, error) {
	return nil, errors.New("index shard unreachable")
}

func TestSearch_FailingIndexIsUpstreamUnavailable(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	broken := failingIndex{Index: f.flats[record.KindPaper]}
	b := f.backends[record.KindPaper]
	b.Index = broken
	b.Engine = expansion.NewEngine(expansion.EngineDI{Index: broken, Vectors: b.Store, Logger: testLogger()})
	f.backends[record.KindPaper] = b

	_, err := f.manager(nil).Search(context.Background(), Request{
		Query:      "graph neural networks",
		SearchType: TypePapers,
		Limit:      10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

type failingCreator struct{}

func (failingCreator) Generate(context.Context, string, string) (*domainEmbedding.Embedding, error) {
	return nil, errors.New("provider returned 502")
}

func TestSearch_EmbeddingFailureIsUpstreamUnavailable(t *testing.T) {
	f := newFixture(t)
	b := f.backends[record.KindPaper]
	b.Store = embedding.NewStore(embedding.StoreDI{
		Kind:         record.KindPaper,
		Creator:      failingCreator{},
		ModelVersion: "broken",
		Logger:       testLogger(),
	})
	f.backends[record.KindPaper] = b

	_, err := f.manager(nil).Search(context.Background(), Request{Query: "gnn", SearchType: TypePapers, Limit: 3})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestSearch_LimitKeepsTopResults(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)
	m := f.manager(nil)

	all, err := m.Search(context.Background(), Request{Query: "graph neural networks", SearchType: TypePapers, Limit: 20})
	require.NoError(t, err)
	require.Len(t, all.Results, 20)

	top, err := m.Search(context.Background(), Request{Query: "graph neural networks", SearchType: TypePapers, Limit: 5})
	require.NoError(t, err)
	require.Len(t, top.Results, 5)
	assert.Equal(t, 5, top.Total)
	assert.Equal(t, resultIDs(all.Results[:5]), resultIDs(top.Results))

	for i := 1; i < len(all.Results); i++ {
		prev, cur := all.Results[i-1], all.Results[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.ID < cur.ID),
			"results %d and %d out of order", i-1, i)
	}
}

func TestSearch_NoDuplicatesAndBoundedDepth(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)

	resp, err := f.manager(nil).Search(context.Background(), Request{
		Query:      "graph neural networks",
		SearchType: TypePapers,
		Limit:      50,
		Overrides:  Overrides{MaxDepth: 3, SeedTopK: 2},
	})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range resp.Results {
		assert.False(t, seen[r.ID], "duplicate %s", r.ID)
		seen[r.ID] = true
		assert.LessOrEqual(t, r.Layer, 3)
		require.NotNil(t, r.Record)
		assert.Equal(t, r.ID, r.Record.ID)
	}
	assert.Equal(t, ProfileAdvanced, resp.Profile)
}

func TestSearch_Idempotent(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)
	m := f.manager(nil)

	req := Request{Query: "graph neural networks", SearchType: TypePapers, Limit: 10}
	first, err := m.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := m.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Variants, second.Variants)
	assert.NotEqual(t, first.SearchID, second.SearchID)
}

func TestSearch_Filters(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)

	resp, err := f.manager(nil).Search(context.Background(), Request{
		Query:      "graph neural networks",
		SearchType: TypePapers,
		Limit:      20,
		Filters:    domain.Filters{"tasks": {"graph classification"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Contains(t, r.Record.Metadata[record.MetaTask], "Graph Classification")
	}
}

func TestSearch_SkipsCandidatesWithoutRecord(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)

	ghost, err := f.stores[record.KindPaper].Embed(context.Background(), "graph neural networks")
	require.NoError(t, err)
	require.NoError(t, f.stores[record.KindPaper].Put(context.Background(), "ghost", ghost))
	require.NoError(t, f.flats[record.KindPaper].Add("ghost", ghost))

	resp, err := f.manager(nil).Search(context.Background(), Request{Query: "graph neural networks", SearchType: TypePapers, Limit: 50})
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(resp.Results), "ghost")
	assert.Len(t, resp.Results, 20)
}

func TestSearch_ResponseCache(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)
	m := f.manager(cache.NewMemoryResponseCache(time.Minute))
	req := Request{Query: "graph neural networks", SearchType: TypePapers, Limit: 5}

	first, err := m.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := m.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, resultIDs(first.Results), resultIDs(second.Results))

	// A new record bumps the index version and misses the cache.
	f.repo.Add(paper("p99", "graph neural networks survey", "Node Classification"))
	_, err = f.indexers[record.KindPaper].IndexRecords(context.Background(), []string{"p99"})
	require.NoError(t, err)

	third, err := m.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)

	n, err := m.InvalidateCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSearch_InvalidInput(t *testing.T) {
	m := newFixture(t).manager(nil)
	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "   ", Limit: 5}},
		{"zero limit", Request{Query: "gnn", Limit: 0}},
		{"limit above max", Request{Query: "gnn", Limit: 1000}},
		{"unknown type", Request{Query: "gnn", SearchType: "videos", Limit: 5}},
		{"unknown profile", Request{Query: "gnn", Profile: "expert", Limit: 5}},
		{"depth override", Request{Query: "gnn", Limit: 5, Overrides: Overrides{MaxDepth: 9}}},
		{"variants override", Request{Query: "gnn", Limit: 5, Overrides: Overrides{Variants: 21}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Search(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSearch_KindNotIndexed(t *testing.T) {
	f := newFixture(t)
	delete(f.backends, record.KindDataset)
	_, err := f.manager(nil).Search(context.Background(), Request{Query: "imagenet", SearchType: TypeDatasets, Limit: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMultiSearch(t *testing.T) {
	recs := append(graphPapers(), &record.Record{
		ID:    "cora",
		Kind:  record.KindDataset,
		Title: "Cora",
		Text:  "citation graph dataset for node classification with graph neural networks",
	})
	f := newFixture(t, recs...)
	f.index(t)

	resp, err := f.manager(nil).MultiSearch(context.Background(), MultiRequest{Query: "graph neural networks", Limit: 3})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, record.KindPaper, resp.Results[TypeMethods].Kind)
	assert.Equal(t, []string{"cora"}, resultIDs(resp.Results[TypeDatasets].Results))
	assert.Len(t, resp.Results[TypePapers].Results, 3)
}

func TestMultiSearch_RejectsAuto(t *testing.T) {
	_, err := newFixture(t).manager(nil).MultiSearch(context.Background(), MultiRequest{
		Query:       "gnn",
		SearchTypes: []string{TypeAuto},
		Limit:       3,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, graphPapers()...)
	f.index(t)

	info := f.manager(nil).Info()
	require.Len(t, info.Kinds, 2)
	assert.Equal(t, record.KindPaper, info.Kinds[0].Kind)
	assert.Equal(t, 20, info.Kinds[0].Vectors)
	assert.Equal(t, "feature-hashing-64", info.Kinds[0].ModelVersion)
	assert.Equal(t, ranking.StrategyWeighted, info.Strategy["paper"])
	assert.Equal(t, 3, info.MaxVariants)
}

func TestDetectSearchType(t *testing.T) {
	tests := map[string]string{
		"graph neural networks":         TypePapers,
		"ImageNet dataset":              TypeDatasets,
		"question answering benchmark":  TypeDatasets,
		"transformer architecture":      TypeMethods,
		"diffusion model for denoising": TypeMethods,
	}
	for query, want := range tests {
		assert.Equal(t, want, DetectSearchType(query), query)
	}
}

func TestResolveProfile(t *testing.T) {
	p, err := resolveProfile("", "graph neural networks", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, ProfileBasic, p)

	p, err = resolveProfile("auto", "one two three four five six seven eight nine ten eleven", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, ProfileAdvanced, p)

	p, err = resolveProfile("", "gnn", Overrides{MaxDepth: 2})
	require.NoError(t, err)
	assert.Equal(t, ProfileAdvanced, p)
}

func TestExpansionOptions(t *testing.T) {
	base := expansion.Options{MaxDepth: 3, SeedTopK: 10, ExpandFrontier: 20, Floors: []float64{0.4}}

	basic := expansionOptions(base, ProfileBasic, 1, Overrides{})
	assert.Equal(t, 1, basic.MaxDepth)

	advanced := expansionOptions(base, ProfileAdvanced, 1, Overrides{SeedTopK: 5, ExpandFrontier: 7})
	assert.Equal(t, 3, advanced.MaxDepth)
	assert.Equal(t, 5, advanced.SeedTopK)
	assert.Equal(t, 7, advanced.ExpandFrontier)

	explicit := expansionOptions(base, ProfileAdvanced, 1, Overrides{MaxDepth: 5})
	assert.Equal(t, 5, explicit.MaxDepth)
}

func TestOverridesValidate(t *testing.T) {
	assert.NoError(t, Overrides{}.Validate())
	assert.NoError(t, Overrides{MaxDepth: 5, Variants: 20, SeedTopK: 50, ExpandFrontier: 100}.Validate())
	assert.ErrorIs(t, Overrides{SeedTopK: 51}.Validate(), domain.ErrInvalidInput)
	assert.ErrorIs(t, Overrides{ExpandFrontier: -1}.Validate(), domain.ErrInvalidInput)
}

func TestCacheKey(t *testing.T) {
	opts := expansion.Options{MaxDepth: 2, Floors: []float64{0.4}}
	a := cacheKey(record.KindPaper, TypePapers, "GNN", domain.Filters{"task": {"b", "a"}}, 5, 3, opts, 7, "m1")
	b := cacheKey(record.KindPaper, TypePapers, "gnn", domain.Filters{"task": {"a", "b"}}, 5, 3, opts, 7, "m1")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, cacheKey(record.KindPaper, TypePapers, "gnn", nil, 5, 3, opts, 8, "m1"))
	assert.NotEqual(t, a, cacheKey(record.KindPaper, TypePapers, "gnn", nil, 6, 3, opts, 7, "m1"))
}
