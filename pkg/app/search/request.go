package search

import (
	"strings"
	"time"

	"github.com/ya-paperswithcode/agentsearch/pkg/app/expansion"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	domain "github.com/ya-paperswithcode/agentsearch/pkg/domain/search"
)

const (
	TypeAuto     = "auto"
	TypePapers   = "papers"
	TypeDatasets = "datasets"
	TypeMethods  = "methods"

	ProfileAuto     = "auto"
	ProfileBasic    = "basic"
	ProfileAdvanced = "advanced"
)

// basicWordLimit is the longest query the basic profile handles when the
// caller did not ask for a depth.
const basicWordLimit = 10

// Overrides are optional per-request knobs. Zero keeps the configured value.
type Overrides struct {
	MaxDepth       int `json:"max_depth,omitempty"`
	Variants       int `json:"variants,omitempty"`
	SeedTopK       int `json:"seed_top_k,omitempty"`
	ExpandFrontier int `json:"expand_frontier,omitempty"`
}

func (o Overrides) Validate() error {
	checks := []struct {
		name     string
		value    int
		min, max int
	}{
		{"expand_layers", o.MaxDepth, 1, 5},
		{"search_queries", o.Variants, 1, 20},
		{"search_papers", o.SeedTopK, 1, 50},
		{"expand_papers", o.ExpandFrontier, 1, 100},
	}
	for _, c := range checks {
		if c.value == 0 {
			continue
		}
		if c.value < c.min || c.value > c.max {
			return domain.InvalidInputf("%s must be between %d and %d, got %d", c.name, c.min, c.max, c.value)
		}
	}
	return nil
}

type Request struct {
	Query      string
	SearchType string
	Profile    string
	Filters    domain.Filters
	Limit      int
	Overrides  Overrides
}

type Response struct {
	SearchID   string                `json:"search_id"`
	Query      string                `json:"query"`
	SearchType string                `json:"search_type"`
	Kind       record.Kind           `json:"kind"`
	Profile    string                `json:"profile"`
	Results    []domain.ScoredResult `json:"results"`
	Total      int                   `json:"total"`
	Variants   []string              `json:"variants"`
	Stats      expansion.Stats       `json:"stats"`
	Cached     bool                  `json:"cached"`
	Duration   time.Duration         `json:"duration"`
	Timestamp  time.Time             `json:"timestamp"`
}

type MultiRequest struct {
	Query       string
	SearchTypes []string
	Filters     domain.Filters
	Limit       int
}

type MultiResponse struct {
	Query    string               `json:"query"`
	Results  map[string]*Response `json:"results"`
	Duration time.Duration        `json:"duration"`
}

// Info describes what the manager can serve.
type Info struct {
	SearchTypes []string          `json:"search_types"`
	Kinds       []KindInfo        `json:"kinds"`
	Strategy    map[string]string `json:"scoring_strategy"`
	MaxDepth    int               `json:"max_depth"`
	BasicDepth  int               `json:"basic_max_depth"`
	Floors      []float64         `json:"floors"`
	MaxVariants int               `json:"max_variants"`
	MaxLimit    int               `json:"max_limit"`
}

type KindInfo struct {
	Kind         record.Kind `json:"kind"`
	Vectors      int         `json:"vectors"`
	ModelVersion string      `json:"model_version"`
}

var (
	datasetKeywords = []string{"dataset", "corpus", "benchmark", "samples", "data"}
	methodKeywords  = []string{"method", "algorithm", "model", "architecture", "approach"}
)

// DetectSearchType guesses what a free-text query is after. Dataset words win
// over method words; everything else is a paper search.
func DetectSearchType(query string) string {
	q := strings.ToLower(query)
	for _, k := range datasetKeywords {
		if strings.Contains(q, k) {
			return TypeDatasets
		}
	}
	for _, k := range methodKeywords {
		if strings.Contains(q, k) {
			return TypeMethods
		}
	}
	return TypePapers
}

// resolveType maps a requested search type onto a concrete type and the
// record kind that serves it. Methods share the paper index.
func resolveType(searchType, query string) (string, record.Kind, error) {
	t := strings.ToLower(strings.TrimSpace(searchType))
	if t == "" || t == TypeAuto {
		t = DetectSearchType(query)
	}
	switch t {
	case TypePapers, "paper":
		return TypePapers, record.KindPaper, nil
	case TypeDatasets, "dataset":
		return TypeDatasets, record.KindDataset, nil
	case TypeMethods, "method":
		return TypeMethods, record.KindPaper, nil
	default:
		return "", "", domain.InvalidInputf("unknown search type %q", searchType)
	}
}

// resolveProfile picks basic or advanced. An explicit depth or a long query
// means advanced.
func resolveProfile(profile, query string, o Overrides) (string, error) {
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileAuto:
		if o.MaxDepth > 0 || len(strings.Fields(query)) > basicWordLimit {
			return ProfileAdvanced, nil
		}
		return ProfileBasic, nil
	case ProfileBasic:
		return ProfileBasic, nil
	case ProfileAdvanced:
		return ProfileAdvanced, nil
	default:
		return "", domain.InvalidInputf("unknown agent type %q", profile)
	}
}

func expansionOptions(base expansion.Options, profile string, basicDepth int, o Overrides) expansion.Options {
	opts := base
	opts.Floors = append([]float64(nil), base.Floors...)
	if profile == ProfileBasic {
		opts.MaxDepth = min(opts.MaxDepth, basicDepth)
	}
	if o.MaxDepth > 0 {
		opts.MaxDepth = o.MaxDepth
	}
	if o.SeedTopK > 0 {
		opts.SeedTopK = o.SeedTopK
	}
	if o.ExpandFrontier > 0 {
		opts.ExpandFrontier = o.ExpandFrontier
	}
	return opts
}
