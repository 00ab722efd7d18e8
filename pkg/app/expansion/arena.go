package expansion

import (
	"slices"
	"strconv"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

// arena owns every candidate of one run, keyed by record id. Entries keep
// discovery order; a record seen again keeps its first layer and path and
// takes the higher similarity.
type arena struct {
	index   map[string]int
	entries []search.Candidate
}

func newArena() *arena {
	return &arena{index: map[string]int{}}
}

func (a *arena) len() int {
	return len(a.entries)
}

func (a *arena) has(id string) bool {
	_, ok := a.index[id]
	return ok
}

// admit records a sighting and reports whether id is new.
func (a *arena) admit(id string, layer int, similarity float64, path []string) bool {
	if i, ok := a.index[id]; ok {
		e := &a.entries[i]
		if layer < e.Layer {
			e.Layer = layer
			e.Path = path
		}
		if similarity > e.Similarity {
			e.Similarity = similarity
		}
		return false
	}
	a.index[id] = len(a.entries)
	a.entries = append(a.entries, search.Candidate{
		ID:         id,
		Layer:      layer,
		Similarity: similarity,
		Path:       path,
	})
	return true
}

func (a *arena) ids() []string {
	ids := make([]string, len(a.entries))
	for i, e := range a.entries {
		ids[i] = e.ID
	}
	return ids
}

// frontier returns the candidates first discovered at layer, best similarity
// first, ties by id, at most limit of them.
func (a *arena) frontier(layer, limit int) []search.Candidate {
	var out []search.Candidate
	for _, e := range a.entries {
		if e.Layer == layer {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(x, y search.Candidate) int {
		switch {
		case x.Similarity > y.Similarity:
			return -1
		case x.Similarity < y.Similarity:
			return 1
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *arena) candidates() []search.Candidate {
	return slices.Clone(a.entries)
}

func seedPath(query int) []string {
	return []string{"q:" + strconv.Itoa(query)}
}

func childPath(parent search.Candidate) []string {
	path := make([]string, 0, len(parent.Path)+1)
	path = append(path, parent.Path...)
	return append(path, parent.ID)
}
