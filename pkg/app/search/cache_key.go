package search

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ya-paperswithcode/agentsearch/pkg/app/expansion"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

// cacheKey identifies a response by everything that can change it, including
// the index version so an append invalidates older entries.
func cacheKey(
	kind record.Kind,
	searchType, query string,
	filters domain.Filters,
	limit, variants int,
	opts expansion.Options,
	indexVersion uint64,
	modelVersion string,
) string {
	d := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = d.WriteString(p)
			_, _ = d.WriteString("\x1f")
		}
	}

	write(string(kind), searchType, strings.ToLower(query), modelVersion)
	write(strconv.Itoa(limit), strconv.Itoa(variants))
	write(
		strconv.Itoa(opts.MaxDepth),
		strconv.Itoa(opts.SeedTopK),
		strconv.Itoa(opts.ExpandTopK),
		strconv.Itoa(opts.ExpandFrontier),
		strconv.Itoa(opts.MaxCandidates),
	)
	for _, f := range opts.Floors {
		write(strconv.FormatFloat(f, 'g', -1, 64))
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		values := slices.Clone(filters[k])
		slices.Sort(values)
		write(k, strings.Join(values, "\x1e"))
	}

	return fmt.Sprintf("%s:%d:%016x", kind, indexVersion, d.Sum64())
}
