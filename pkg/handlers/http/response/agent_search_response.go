package response

import (
	"time"

	"github.com/ya-paperswithcode/agentsearch/pkg/app/search"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
)

type ResultOutput struct {
	ID         string              `json:"id"`
	Kind       record.Kind         `json:"kind"`
	Title      string              `json:"title"`
	Text       string              `json:"text,omitempty"`
	URL        string              `json:"url,omitempty"`
	Metadata   map[string][]string `json:"metadata,omitempty"`
	Popularity int                 `json:"popularity"`
	Score      float64             `json:"score"`
	Rank       int                 `json:"rank"`
	Layer      int                 `json:"layer"`
	Similarity float64             `json:"similarity"`
	Path       []string            `json:"path"`
}

type MetadataOutput struct {
	SearchID   string   `json:"search_id"`
	AgentType  string   `json:"agent_type"`
	Variants   []string `json:"variants"`
	Layers     int      `json:"layers"`
	PerLayer   []int    `json:"per_layer"`
	Dropped    int      `json:"dropped"`
	HaltReason string   `json:"halt_reason"`
	Cached     bool     `json:"cached"`
}

type AgentSearchOutput struct {
	Results       []ResultOutput `json:"results"`
	Total         int            `json:"total"`
	Query         string         `json:"query"`
	SearchType    string         `json:"search_type"`
	ExecutionTime float64        `json:"execution_time"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      MetadataOutput `json:"metadata"`
}

type MultiSearchOutput struct {
	Query         string                       `json:"query"`
	Results       map[string]AgentSearchOutput `json:"results"`
	ExecutionTime float64                      `json:"execution_time"`
}

func NewAgentSearchOutput(resp *search.Response) AgentSearchOutput {
	out := AgentSearchOutput{
		Results:       make([]ResultOutput, 0, len(resp.Results)),
		Total:         resp.Total,
		Query:         resp.Query,
		SearchType:    resp.SearchType,
		ExecutionTime: resp.Duration.Seconds(),
		Timestamp:     resp.Timestamp,
		Metadata: MetadataOutput{
			SearchID:   resp.SearchID,
			AgentType:  resp.Profile,
			Variants:   resp.Variants,
			Layers:     resp.Stats.Layers,
			PerLayer:   resp.Stats.PerLayer,
			Dropped:    resp.Stats.Dropped,
			HaltReason: string(resp.Stats.HaltReason),
			Cached:     resp.Cached,
		},
	}
	for _, r := range resp.Results {
		item := ResultOutput{
			ID:         r.ID,
			Kind:       resp.Kind,
			Score:      r.Score,
			Rank:       r.Rank,
			Layer:      r.Layer,
			Similarity: r.Similarity,
			Path:       r.Path,
		}
		if r.Record != nil {
			item.Kind = r.Record.Kind
			item.Title = r.Record.Title
			item.Text = r.Record.Text
			item.URL = r.Record.URL
			item.Metadata = r.Record.Metadata
			item.Popularity = r.Record.Popularity
		}
		out.Results = append(out.Results, item)
	}
	return out
}

func NewMultiSearchOutput(resp *search.MultiResponse) MultiSearchOutput {
	out := MultiSearchOutput{
		Query:         resp.Query,
		Results:       make(map[string]AgentSearchOutput, len(resp.Results)),
		ExecutionTime: resp.Duration.Seconds(),
	}
	for t, r := range resp.Results {
		out.Results[t] = NewAgentSearchOutput(r)
	}
	return out
}
