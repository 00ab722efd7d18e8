package ranking

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

func weightedConfig() config.ScoringConfig {
	return config.ScoringConfig{Strategy: "weighted", QueryWeight: 0.5, LayerDecay: 0.9, BoostWeight: 0.1}
}

func resultIDs(rs []search.ScoredResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestNewRanker(t *testing.T) {
	r, err := NewRanker(config.ScoringConfig{})
	require.NoError(t, err)
	assert.Equal(t, StrategyWeighted, r.Strategy())

	r, err = NewRanker(config.ScoringConfig{Strategy: "RRF", RRFK: 60, RRFGamma: 1})
	require.NoError(t, err)
	assert.Equal(t, StrategyRRF, r.Strategy())

	_, err = NewRanker(config.ScoringConfig{Strategy: "bm25"})
	assert.Error(t, err)

	_, err = NewRanker(config.ScoringConfig{Strategy: StrategySelector})
	assert.Error(t, err)
}

func TestWeighted_OrderAndTies(t *testing.T) {
	r, err := NewRanker(weightedConfig())
	require.NoError(t, err)

	got := r.Rank(context.Background(), Input{Candidates: []search.Candidate{
		{ID: "b", Similarity: 0.8},
		{ID: "a", Similarity: 0.8},
		{ID: "c", Similarity: 0.9},
	}})

	assert.Equal(t, []string{"c", "a", "b"}, resultIDs(got))
	for i, res := range got {
		assert.Equal(t, i+1, res.Rank)
	}
}

func TestWeighted_Formula(t *testing.T) {
	r, err := NewRanker(weightedConfig())
	require.NoError(t, err)

	got := r.Rank(context.Background(), Input{
		Candidates:  []search.Candidate{{ID: "p1", Layer: 1, Similarity: 0.6}},
		QueryVector: []float32{1, 0},
		Vectors:     map[string][]float32{"p1": {2, 0}},
		Records:     map[string]*record.Record{"p1": {ID: "p1", Popularity: 0}},
	})
	require.Len(t, got, 1)
	// (0.5*1 + 0.5*0.6) * 0.9
	assert.InDelta(t, 0.72, got[0].Score, 1e-9)
	assert.Equal(t, "p1", got[0].Record.ID)

	pop := 2
	got = r.Rank(context.Background(), Input{
		Candidates: []search.Candidate{{ID: "p2", Similarity: 0.6}},
		Records:    map[string]*record.Record{"p2": {ID: "p2", Popularity: pop}},
	})
	l := math.Log1p(float64(pop))
	assert.InDelta(t, 0.6+0.1*l/(1+l), got[0].Score, 1e-9)
}

func TestWeighted_DeeperLayersDecay(t *testing.T) {
	r, err := NewRanker(weightedConfig())
	require.NoError(t, err)

	got := r.Rank(context.Background(), Input{Candidates: []search.Candidate{
		{ID: "deep", Layer: 2, Similarity: 0.8},
		{ID: "seed", Layer: 0, Similarity: 0.8},
	}})
	assert.Equal(t, []string{"seed", "deep"}, resultIDs(got))
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRank_LimitKeepsTopScores(t *testing.T) {
	r, err := NewRanker(weightedConfig())
	require.NoError(t, err)

	var cands []search.Candidate
	for i := 0; i < 20; i++ {
		cands = append(cands, search.Candidate{ID: fmt.Sprintf("r%02d", i), Similarity: float64(i) / 20})
	}
	got := r.Rank(context.Background(), Input{Candidates: cands, Limit: 5})

	assert.Equal(t, []string{"r19", "r18", "r17", "r16", "r15"}, resultIDs(got))
	assert.Equal(t, 5, got[4].Rank)
}

func TestRank_IndependentOfInputOrder(t *testing.T) {
	for _, strategy := range []string{StrategyWeighted, StrategyRRF} {
		t.Run(strategy, func(t *testing.T) {
			cfg := weightedConfig()
			cfg.Strategy = strategy
			cfg.RRFK, cfg.RRFGamma = 60, 1
			r, err := NewRanker(cfg)
			require.NoError(t, err)

			records := map[string]*record.Record{
				"a": {ID: "a", Popularity: 3},
				"b": {ID: "b", Popularity: 3},
				"c": {ID: "c", Popularity: 9},
			}
			forward := r.Rank(context.Background(), Input{Records: records, Candidates: []search.Candidate{
				{ID: "a", Similarity: 0.7}, {ID: "b", Similarity: 0.7}, {ID: "c", Similarity: 0.5},
			}})
			backward := r.Rank(context.Background(), Input{Records: records, Candidates: []search.Candidate{
				{ID: "c", Similarity: 0.5}, {ID: "b", Similarity: 0.7}, {ID: "a", Similarity: 0.7},
			}})
			assert.Equal(t, forward, backward)
		})
	}
}

func TestRRF_FusesSimilarityAndPopularity(t *testing.T) {
	r, err := NewRanker(config.ScoringConfig{Strategy: StrategyRRF, RRFK: 60, RRFGamma: 1})
	require.NoError(t, err)

	got := r.Rank(context.Background(), Input{
		Candidates: []search.Candidate{
			{ID: "c", Similarity: 0.7},
			{ID: "b", Similarity: 0.5},
			{ID: "a", Similarity: 0.9},
		},
		Records: map[string]*record.Record{
			"a": {ID: "a", Popularity: 0},
			"b": {ID: "b", Popularity: 100},
			"c": {ID: "c", Popularity: 10},
		},
	})

	// a and b both get 1/61 + 1/63 and tie, c gets 2/62.
	assert.Equal(t, []string{"a", "b", "c"}, resultIDs(got))
	assert.InDelta(t, 1.0/61+1.0/63, got[0].Score, 1e-12)
	assert.InDelta(t, 2.0/62, got[2].Score, 1e-12)
}

func TestRank_Empty(t *testing.T) {
	r, err := NewRanker(weightedConfig())
	require.NoError(t, err)
	assert.Empty(t, r.Rank(context.Background(), Input{Limit: 10}))
}
