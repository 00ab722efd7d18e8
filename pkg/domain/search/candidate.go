package search

import "github.com/ya-paperswithcode/agentsearch/pkg/domain/record"

// Query is one planned search variant. Vector is filled once the text has
// been embedded.
type Query struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"-"`
}

// Candidate is a record discovered during expansion. A record reached by
// several paths keeps the minimum layer and the highest similarity observed.
type Candidate struct {
	ID         string   `json:"id"`
	Layer      int      `json:"layer"`
	Similarity float64  `json:"similarity"`
	Path       []string `json:"path"`
}

// ScoredResult is a ranked candidate with its hydrated record.
type ScoredResult struct {
	Candidate
	Score  float64        `json:"score"`
	Rank   int            `json:"rank"`
	Record *record.Record `json:"record,omitempty"`
}
