package ranking

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

const (
	StrategyWeighted = "weighted"
	StrategyRRF      = "rrf"
	StrategySelector = "selector"
)

// Input is everything one ranking pass looks at. Vectors and Records may be
// partial; a missing vector falls back to the raw similarity and a missing
// record counts as zero popularity.
type Input struct {
	Query       string
	Candidates  []search.Candidate
	QueryVector []float32
	Vectors     map[string][]float32
	Records     map[string]*record.Record
	Limit       int
}

type Ranker interface {
	// Rank orders by score descending, ties by id ascending, assigns 1-based
	// ranks and keeps at most Limit results. A non-positive Limit keeps all.
	Rank(ctx context.Context, in Input) []search.ScoredResult
	Strategy() string
}

// NewRanker builds the local strategies. The selector strategy needs a chat
// client and is built with NewSelectorRanker.
func NewRanker(cfg config.ScoringConfig) (Ranker, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "", StrategyWeighted:
		return &weighted{
			queryWeight: cfg.QueryWeight,
			layerDecay:  cfg.LayerDecay,
			boostWeight: cfg.BoostWeight,
		}, nil
	case StrategyRRF:
		return &rrf{k: cfg.RRFK, gamma: cfg.RRFGamma}, nil
	case StrategySelector:
		return nil, fmt.Errorf("scoring strategy %q needs a chat provider", cfg.Strategy)
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", cfg.Strategy)
	}
}

type weighted struct {
	queryWeight float64
	layerDecay  float64
	boostWeight float64
}

func (w *weighted) Strategy() string { return StrategyWeighted }

func (w *weighted) Rank(_ context.Context, in Input) []search.ScoredResult {
	out := make([]search.ScoredResult, len(in.Candidates))
	for i, c := range in.Candidates {
		base := c.Similarity
		if v, ok := in.Vectors[c.ID]; ok && len(in.QueryVector) > 0 {
			base = w.queryWeight*cosine(v, in.QueryVector) + (1-w.queryWeight)*c.Similarity
		}
		score := base*math.Pow(w.layerDecay, float64(c.Layer)) + w.boostWeight*popularityBoost(popularity(in.Records, c.ID))
		out[i] = search.ScoredResult{Candidate: c, Score: score, Record: in.Records[c.ID]}
	}
	return finish(out, in.Limit)
}

// rrf fuses the similarity order with the popularity order by reciprocal rank.
type rrf struct {
	k     float64
	gamma float64
}

func (r *rrf) Strategy() string { return StrategyRRF }

func (r *rrf) Rank(_ context.Context, in Input) []search.ScoredResult {
	n := len(in.Candidates)
	bySim := make([]int, n)
	byPop := make([]int, n)
	for i := range in.Candidates {
		bySim[i], byPop[i] = i, i
	}
	cands := in.Candidates
	slices.SortStableFunc(bySim, func(a, b int) int {
		return compareDesc(cands[a].Similarity, cands[b].Similarity, cands[a].ID, cands[b].ID)
	})
	slices.SortStableFunc(byPop, func(a, b int) int {
		pa, pb := popularity(in.Records, cands[a].ID), popularity(in.Records, cands[b].ID)
		return compareDesc(float64(pa), float64(pb), cands[a].ID, cands[b].ID)
	})

	scores := make([]float64, n)
	for rank, i := range bySim {
		scores[i] += 1 / (r.k + float64(rank+1))
	}
	for rank, i := range byPop {
		scores[i] += r.gamma / (r.k + float64(rank+1))
	}

	out := make([]search.ScoredResult, n)
	for i, c := range cands {
		out[i] = search.ScoredResult{Candidate: c, Score: scores[i], Record: in.Records[c.ID]}
	}
	return finish(out, in.Limit)
}

func finish(results []search.ScoredResult, limit int) []search.ScoredResult {
	slices.SortFunc(results, func(a, b search.ScoredResult) int {
		return compareDesc(a.Score, b.Score, a.ID, b.ID)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func compareDesc(a, b float64, idA, idB string) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return strings.Compare(idA, idB)
}

func popularity(records map[string]*record.Record, id string) int {
	if r, ok := records[id]; ok && r != nil && r.Popularity > 0 {
		return r.Popularity
	}
	return 0
}

// popularityBoost maps a count onto [0, 1) with diminishing returns.
func popularityBoost(pop int) float64 {
	l := math.Log1p(float64(pop))
	return l / (1 + l)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
