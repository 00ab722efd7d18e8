package config

import "time"

// SearchConfig holds the expansion and ranking knobs shared by every search kind.
type SearchConfig struct {
	MaxDepth       int           `mapstructure:"max_depth"`
	BasicMaxDepth  int           `mapstructure:"basic_max_depth"`
	SeedTopK       int           `mapstructure:"seed_top_k"`
	ExpandTopK     int           `mapstructure:"expand_top_k"`
	ExpandFrontier int           `mapstructure:"expand_frontier"`
	Floors         []float64     `mapstructure:"floors"`
	MaxCandidates  int           `mapstructure:"max_candidates"`
	Parallelism    int           `mapstructure:"parallelism"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultLimit   int           `mapstructure:"default_limit"`
	MaxLimit       int           `mapstructure:"max_limit"`
	BreakerFailure uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	Scoring        ScoringConfig `mapstructure:"scoring"`
}

type ScoringConfig struct {
	Strategy    string         `mapstructure:"strategy"` // weighted, rrf, selector
	QueryWeight float64        `mapstructure:"query_weight"`
	LayerDecay  float64        `mapstructure:"layer_decay"`
	BoostWeight float64        `mapstructure:"boost_weight"`
	RRFK        float64        `mapstructure:"rrf_k"`
	RRFGamma    float64        `mapstructure:"rrf_gamma"`
	Selector    SelectorConfig `mapstructure:"selector"`
}

// SelectorConfig drives the selector strategy: a chat model grades how well
// each of the top candidates answers the query.
type SelectorConfig struct {
	Provider           string        `mapstructure:"provider"` // openai, anthropic, gemini
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	Timeout            time.Duration `mapstructure:"timeout"`
	TopN               int           `mapstructure:"top_n"`
	Parallelism        int           `mapstructure:"parallelism"`
	Threshold          float64       `mapstructure:"threshold"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

func applySearchDefaults(cfg *SearchConfig) {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 2
	}
	if cfg.BasicMaxDepth == 0 {
		cfg.BasicMaxDepth = 1
	}
	if cfg.SeedTopK == 0 {
		cfg.SeedTopK = 10
	}
	if cfg.ExpandTopK == 0 {
		cfg.ExpandTopK = 10
	}
	if cfg.ExpandFrontier == 0 {
		cfg.ExpandFrontier = 20
	}
	if len(cfg.Floors) == 0 {
		cfg.Floors = []float64{0.4, 0.5, 0.6}
	}
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = 500
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 20
	}
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 200
	}
	if cfg.BreakerFailure == 0 {
		cfg.BreakerFailure = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 10 * time.Second
	}
	if cfg.Scoring.Strategy == "" {
		cfg.Scoring.Strategy = "weighted"
	}
	if cfg.Scoring.QueryWeight == 0 {
		cfg.Scoring.QueryWeight = 0.5
	}
	if cfg.Scoring.LayerDecay == 0 {
		cfg.Scoring.LayerDecay = 0.9
	}
	if cfg.Scoring.BoostWeight == 0 {
		cfg.Scoring.BoostWeight = 0.05
	}
	if cfg.Scoring.RRFK == 0 {
		cfg.Scoring.RRFK = 60
	}
	if cfg.Scoring.RRFGamma == 0 {
		cfg.Scoring.RRFGamma = 1
	}
	applySelectorDefaults(&cfg.Scoring.Selector)
}

func applySelectorDefaults(cfg *SelectorConfig) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TopN == 0 {
		cfg.TopN = 30
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 8
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 3
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
}
