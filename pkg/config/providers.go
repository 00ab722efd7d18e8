package config

import "time"

// EmbeddingConfig configures the embedding provider and the on-disk snapshots
// produced by the offline builder.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"` // hashing, openai, genai
	Model             string        `mapstructure:"model"`
	Version           string        `mapstructure:"version"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Dimension         int           `mapstructure:"dimension"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SnapshotDir       string        `mapstructure:"snapshot_dir"`
	BuildOnStart      bool          `mapstructure:"build_on_start"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Concurrency       int           `mapstructure:"concurrency"`
	QueryCacheTTL     time.Duration `mapstructure:"query_cache_ttl"`
}

// PlannerConfig configures query variant generation. Provider heuristic never
// calls a remote model.
type PlannerConfig struct {
	Provider           string        `mapstructure:"provider"` // heuristic, openai, anthropic, gemini
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxVariants        int           `mapstructure:"max_variants"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

func applyEmbeddingDefaults(cfg *EmbeddingConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "hashing"
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case "openai":
			cfg.Model = "text-embedding-3-small"
		case "genai":
			cfg.Model = "text-embedding-004"
		default:
			cfg.Model = "feature-hashing"
		}
	}
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "data/embeddings"
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 8
	}
	if cfg.QueryCacheTTL == 0 {
		cfg.QueryCacheTTL = time.Hour
	}
}

func applyPlannerDefaults(cfg *PlannerConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "heuristic"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxVariants == 0 {
		cfg.MaxVariants = 5
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 3
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
}
