package request

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const maxQueryLength = 1000

// AgentSearchRequest is the body of every agent search endpoint.
type AgentSearchRequest struct {
	Query         string         `json:"query"` // @required
	Limit         int            `json:"limit"`
	MaxResults    int            `json:"max_results"`
	Filters       map[string]any `json:"filters"`
	SearchType    string         `json:"search_type"`
	AgentType     string         `json:"agent_type"`
	ExpandLayers  int            `json:"expand_layers"`
	SearchQueries int            `json:"search_queries"`
	SearchPapers  int            `json:"search_papers"`
	ExpandPapers  int            `json:"expand_papers"`
}

func (r *AgentSearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if len(r.Query) > maxQueryLength {
		return fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}
	if r.Limit < 0 || r.MaxResults < 0 {
		return fmt.Errorf("limit must be positive")
	}
	return nil
}

// EffectiveLimit prefers limit over max_results and falls back to def.
func (r *AgentSearchRequest) EffectiveLimit(def int) int {
	switch {
	case r.Limit > 0:
		return r.Limit
	case r.MaxResults > 0:
		return r.MaxResults
	default:
		return def
	}
}

// DecodeFilters accepts a value or a list of values per key and coerces
// numbers and booleans to strings, so {"year": 2020} and
// {"years": ["2020", "2021"]} both work.
func DecodeFilters(raw map[string]any) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(raw))
	for key, value := range raw {
		var values []string
		if err := mapstructure.WeakDecode(value, &values); err != nil {
			return nil, fmt.Errorf("filter %q: %w", key, err)
		}
		out[key] = values
	}
	return out, nil
}
