package request

import (
	"fmt"
	"strings"
)

type MultiSearchRequest struct {
	Query       string         `json:"query"` // @required
	SearchTypes []string       `json:"search_types"`
	Limit       int            `json:"limit"`
	Filters     map[string]any `json:"filters"`
}

func (r *MultiSearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if len(r.Query) > maxQueryLength {
		return fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must be positive")
	}
	for _, t := range r.SearchTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("search_types must not contain empty values")
		}
	}
	return nil
}
