package response

import "github.com/ya-paperswithcode/agentsearch/pkg/app/embedding"

type IndexRecordsOutput struct {
	Kind      string   `json:"kind"`
	Requested int      `json:"requested"`
	Indexed   int      `json:"indexed"`
	Missing   []string `json:"missing"`
	Failed    []string `json:"failed"`
	Duration  float64  `json:"duration"`
}

func NewIndexRecordsOutput(r *embedding.IndexReport) IndexRecordsOutput {
	out := IndexRecordsOutput{
		Kind:      string(r.Kind),
		Requested: r.Requested,
		Indexed:   r.Indexed,
		Missing:   r.Missing,
		Failed:    r.Failed,
		Duration:  r.Duration.Seconds(),
	}
	if out.Missing == nil {
		out.Missing = []string{}
	}
	if out.Failed == nil {
		out.Failed = []string{}
	}
	return out
}
