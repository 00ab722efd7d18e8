package planner

import (
	"context"
	"strings"

	"github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

// Planner expands a user query into distinct search queries. The first query
// is always the normalized original; the result is never empty and never
// longer than maxVariants. Vectors are left for the caller to fill in.
type Planner interface {
	Plan(ctx context.Context, query string, maxVariants int) ([]search.Query, error)
}

// Normalize collapses whitespace. It is the form used for the first variant
// and for cache keys.
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func variantKey(q string) string {
	return strings.ToLower(Normalize(q))
}

// variantSet collects distinct variants in insertion order up to a limit.
type variantSet struct {
	limit int
	seen  map[string]struct{}
	out   []search.Query
}

func newVariantSet(limit int) *variantSet {
	if limit < 1 {
		limit = 1
	}
	return &variantSet{limit: limit, seen: map[string]struct{}{}}
}

// add reports whether there is room for more variants.
func (s *variantSet) add(q string) bool {
	if s.full() {
		return false
	}
	q = Normalize(q)
	if q == "" {
		return true
	}
	key := variantKey(q)
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, search.Query{Text: q})
	return !s.full()
}

func (s *variantSet) full() bool {
	return len(s.out) >= s.limit
}

func (s *variantSet) queries() []search.Query {
	return s.out
}
