package expansion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/index"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func vec(i int) []float32 {
	return []float32{float32(i)}
}

// scriptedIndex answers TopK from a fixed table keyed by the query vector.
// Scripted neighbor lists are already ordered.
type scriptedIndex struct {
	search.Index
	hits  map[string][]search.Neighbor
	block map[string]bool
	fail  error
	// unscripted is returned for vectors with no scripted hits.
	unscripted error

	mu    sync.Mutex
	calls int
}

func newScriptedIndex() *scriptedIndex {
	return &scriptedIndex{hits: map[string][]search.Neighbor{}, block: map[string]bool{}}
}

func (s *scriptedIndex) on(v []float32, hits ...search.Neighbor) *scriptedIndex {
	s.hits[fmt.Sprint(v)] = hits
	return s
}

func (s *scriptedIndex) TopK(ctx context.Context, v []float32, k int, exclude []string) ([]search.Neighbor, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.fail != nil {
		return nil, s.fail
	}
	key := fmt.Sprint(v)
	if _, ok := s.hits[key]; !ok && s.unscripted != nil {
		return nil, s.unscripted
	}
	if s.block[key] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []search.Neighbor
	for _, n := range s.hits[key] {
		if skip[n.ID] {
			continue
		}
		out = append(out, n)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

type mapVectors map[string][]float32

func (m mapVectors) GetVector(_ context.Context, id string) ([]float32, error) {
	v, ok := m[id]
	if !ok {
		return nil, errors.New("vector not found")
	}
	return v, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	layers  map[int]int
	dropped map[int]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{layers: map[int]int{}, dropped: map[int]int{}}
}

func (o *recordingObserver) ObserveLayer(layer, admitted int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.layers[layer] += admitted
}

func (o *recordingObserver) ObserveDropped(layer, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[layer] += dropped
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func n(id string, sim float64) search.Neighbor {
	return search.Neighbor{ID: id, Similarity: sim}
}

func byID(cands []search.Candidate) map[string]search.Candidate {
	out := make(map[string]search.Candidate, len(cands))
	for _, c := range cands {
		out[c.ID] = c
	}
	return out
}

func candidateIDs(cands []search.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

// gnnFixture models "graph neural networks": A, B and C clear the seed floor,
// B leads to D at 0.8 and C leads to E at 0.72.
func gnnFixture() (*scriptedIndex, mapVectors) {
	idx := newScriptedIndex().
		on(vec(0), n("A", 0.9), n("B", 0.85), n("C", 0.8), n("X", 0.6)).
		on(vec(1), n("B", 0.9), n("F", 0.5)).
		on(vec(2), n("D", 0.8)).
		on(vec(3), n("E", 0.72)).
		on(vec(4), n("G", 0.9))
	vectors := mapVectors{"A": vec(1), "B": vec(2), "C": vec(3), "D": vec(4), "E": vec(5), "G": vec(6)}
	return idx, vectors
}

func gnnOptions() Options {
	return Options{
		MaxDepth:       2,
		SeedTopK:       10,
		ExpandTopK:     10,
		ExpandFrontier: 10,
		MaxCandidates:  100,
		Parallelism:    4,
		Floors:         []float64{0.7, 0.75},
	}
}

func TestExpand_GraphNeuralNetworksScenario(t *testing.T) {
	idx, vectors := gnnFixture()
	obs := newRecordingObserver()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Observer: obs, Logger: testLogger()})

	res, err := e.Expand(context.Background(), []search.Query{{Text: "graph neural networks", Vector: vec(0)}}, gnnOptions())
	require.NoError(t, err)

	got := byID(res.Candidates)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D", "G"}, candidateIDs(res.Candidates))
	assert.NotContains(t, got, "E")
	assert.NotContains(t, got, "X")
	assert.NotContains(t, got, "F")

	d := got["D"]
	assert.Equal(t, 1, d.Layer)
	assert.InDelta(t, 0.8, d.Similarity, 1e-9)
	assert.Equal(t, []string{"q:0", "B"}, d.Path)

	g := got["G"]
	assert.Equal(t, 2, g.Layer)
	assert.Equal(t, []string{"q:0", "B", "D"}, g.Path)

	assert.Equal(t, 0, got["A"].Layer)
	assert.Equal(t, []string{"q:0"}, got["A"].Path)

	assert.Equal(t, 3, res.Stats.Layers)
	assert.Equal(t, []int{3, 1, 1}, res.Stats.PerLayer)
	assert.Equal(t, HaltMaxDepth, res.Stats.HaltReason)
	assert.Zero(t, res.Stats.Dropped)
	assert.Equal(t, map[int]int{0: 3, 1: 1, 2: 1}, obs.layers)
}

func TestExpand_DepthNeverExceedsMax(t *testing.T) {
	idx, vectors := gnnFixture()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	for depth := 0; depth <= 3; depth++ {
		opts := gnnOptions()
		opts.MaxDepth = depth
		res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
		require.NoError(t, err)
		for _, c := range res.Candidates {
			assert.LessOrEqual(t, c.Layer, depth, "candidate %s", c.ID)
			assert.Len(t, c.Path, c.Layer+1)
		}
	}
}

func TestExpand_SeedsOnlyWhenDepthZero(t *testing.T) {
	idx, vectors := gnnFixture()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 0
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, candidateIDs(res.Candidates))
	assert.Equal(t, HaltMaxDepth, res.Stats.HaltReason)
	assert.Equal(t, 1, res.Stats.Layers)
}

func TestExpand_DeduplicatesAcrossQueries(t *testing.T) {
	idx := newScriptedIndex().
		on(vec(0), n("A", 0.9), n("B", 0.8)).
		on(vec(1), n("B", 0.95), n("C", 0.85))
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{}, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 0
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}, {Vector: vec(1)}}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, candidateIDs(res.Candidates))
	b := byID(res.Candidates)["B"]
	assert.InDelta(t, 0.95, b.Similarity, 1e-9)
	assert.Equal(t, []string{"q:0"}, b.Path)
}

func TestExpand_HaltsWhenExhausted(t *testing.T) {
	idx := newScriptedIndex().on(vec(0), n("A", 0.9))
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{"A": vec(1)}, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 3
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, HaltExhausted, res.Stats.HaltReason)
	assert.Equal(t, []int{1, 0}, res.Stats.PerLayer)
	assert.Equal(t, 2, idx.calls)
}

func TestExpand_HaltsAtMaxCandidates(t *testing.T) {
	idx, vectors := gnnFixture()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxCandidates = 2
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, candidateIDs(res.Candidates))
	assert.Equal(t, HaltMaxCandidates, res.Stats.HaltReason)
}

func TestExpand_EmptyIndex(t *testing.T) {
	e := NewEngine(EngineDI{Index: index.NewFlat(1), Vectors: mapVectors{}, Logger: testLogger()})

	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(1)}}, gnnOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, HaltExhausted, res.Stats.HaltReason)
}

func TestExpand_FailingIndexIsUpstreamUnavailable(t *testing.T) {
	idx := newScriptedIndex()
	idx.fail = errors.New("connection refused")
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{}, Logger: testLogger()})

	_, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}, {Vector: vec(1)}}, gnnOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
}

func TestExpand_QueryWithoutVector(t *testing.T) {
	e := NewEngine(EngineDI{Index: newScriptedIndex(), Vectors: mapVectors{}, Logger: testLogger()})

	_, err := e.Expand(context.Background(), []search.Query{{Text: "unembedded"}}, gnnOptions())
	assert.ErrorIs(t, err, search.ErrInvalidInput)
}

func TestExpand_DropsFailedCandidates(t *testing.T) {
	idx := newScriptedIndex().
		on(vec(0), n("A", 0.9), n("B", 0.8)).
		on(vec(1), n("C", 0.8))
	obs := newRecordingObserver()
	// B has no stored vector.
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{"A": vec(1), "C": vec(9)}, Observer: obs, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 1
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, candidateIDs(res.Candidates))
	assert.Equal(t, 1, res.Stats.Dropped)
	assert.Equal(t, map[int]int{1: 1}, obs.dropped)
}

func TestExpand_IndexLostAfterSeedsIsUpstreamUnavailable(t *testing.T) {
	idx := newScriptedIndex().on(vec(0), n("A", 0.9), n("B", 0.85), n("C", 0.8))
	idx.unscripted = fmt.Errorf("index breaker open: %w", search.ErrUpstreamUnavailable)
	vectors := mapVectors{"A": vec(1), "B": vec(2), "C": vec(3)}
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	_, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, gnnOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrUpstreamUnavailable)
}

func TestExpand_SingleUnavailableLookupIsDropped(t *testing.T) {
	idx := newScriptedIndex().
		on(vec(0), n("A", 0.9), n("B", 0.85)).
		on(vec(1), n("D", 0.8))
	idx.unscripted = fmt.Errorf("index breaker open: %w", search.ErrUpstreamUnavailable)
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{"A": vec(1), "B": vec(2)}, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 1
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, candidateIDs(res.Candidates))
	assert.Equal(t, 1, res.Stats.Dropped)
}

func TestExpand_SlowSeedLookupIsDropped(t *testing.T) {
	idx := newScriptedIndex().on(vec(0), n("A", 0.9))
	idx.block[fmt.Sprint(vec(1))] = true
	e := NewEngine(EngineDI{Index: idx, Vectors: mapVectors{}, Logger: testLogger()})

	opts := gnnOptions()
	opts.MaxDepth = 0
	opts.LookupTimeout = 20 * time.Millisecond
	res, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}, {Vector: vec(1)}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, candidateIDs(res.Candidates))
	assert.Equal(t, 1, res.Stats.Dropped)
}

func TestExpand_CancelledContext(t *testing.T) {
	idx, vectors := gnnFixture()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Expand(ctx, []search.Query{{Vector: vec(0)}}, gnnOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpand_Deterministic(t *testing.T) {
	idx, vectors := gnnFixture()
	idx.on(vec(5), n("A", 0.99), n("H", 0.95))
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})

	opts := gnnOptions()
	opts.Parallelism = 8
	queries := []search.Query{{Vector: vec(0)}, {Vector: vec(5)}}

	first, err := e.Expand(context.Background(), queries, opts)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := e.Expand(context.Background(), queries, opts)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type flatVectors struct{ flat *index.Flat }

func (f flatVectors) GetVector(_ context.Context, id string) ([]float32, error) {
	v, ok := f.flat.Vector(id)
	if !ok {
		return nil, errors.New("unknown id")
	}
	return v, nil
}

func TestExpand_OverFlatIndex(t *testing.T) {
	flat := index.NewFlat(2)
	require.NoError(t, flat.AddBatch(
		[]string{"near", "mid", "far"},
		[][]float32{{1, 0}, {0.8, 0.6}, {0, 1}},
	))
	e := NewEngine(EngineDI{Index: flat, Vectors: flatVectors{flat}, Logger: testLogger()})

	opts := Options{MaxDepth: 2, SeedTopK: 1, ExpandTopK: 1, Floors: []float64{0.9, 0.5}}
	res, err := e.Expand(context.Background(), []search.Query{{Vector: []float32{1, 0}}}, opts)
	require.NoError(t, err)

	got := byID(res.Candidates)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got["near"].Layer)
	assert.Equal(t, 1, got["mid"].Layer)
	assert.Equal(t, 2, got["far"].Layer)
	assert.Equal(t, []string{"q:0", "near", "mid"}, got["far"].Path)
}

func TestExpand_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	idx, vectors := gnnFixture()
	e := NewEngine(EngineDI{Index: idx, Vectors: vectors, Logger: testLogger()})
	_, err := e.Expand(context.Background(), []search.Query{{Vector: vec(0)}}, gnnOptions())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["expansion.Expand"])
	assert.Equal(t, 3, names["expansion.layer"])
}

func TestOptions_Floors(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		expect []float64
	}{
		{"repeat last", Options{MaxDepth: 3, Floors: []float64{0.7, 0.75}}, []float64{0.7, 0.75, 0.75, 0.75}},
		{"non decreasing", Options{MaxDepth: 2, Floors: []float64{0.6, 0.4, 0.8}}, []float64{0.6, 0.6, 0.8}},
		{"none", Options{MaxDepth: 1}, []float64{-1, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.opts.floors())
		})
	}
}
