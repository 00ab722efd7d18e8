package expansion

import (
	"time"

	"github.com/ya-paperswithcode/agentsearch/pkg/config"
)

// Options bound one expansion run. MaxDepth counts expansion layers after the
// seed layer, so MaxDepth 0 returns seeds only.
type Options struct {
	MaxDepth       int
	SeedTopK       int
	ExpandTopK     int
	ExpandFrontier int
	MaxCandidates  int
	Parallelism    int
	Floors         []float64
	LookupTimeout  time.Duration
}

func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		MaxDepth:       cfg.MaxDepth,
		SeedTopK:       cfg.SeedTopK,
		ExpandTopK:     cfg.ExpandTopK,
		ExpandFrontier: cfg.ExpandFrontier,
		MaxCandidates:  cfg.MaxCandidates,
		Parallelism:    cfg.Parallelism,
		Floors:         append([]float64(nil), cfg.Floors...),
		LookupTimeout:  cfg.LookupTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.SeedTopK <= 0 {
		o.SeedTopK = 10
	}
	if o.ExpandTopK <= 0 {
		o.ExpandTopK = o.SeedTopK
	}
	if o.ExpandFrontier <= 0 {
		o.ExpandFrontier = 20
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	return o
}

// floors returns one floor per layer 0..MaxDepth. Missing entries repeat the
// last configured floor and every floor is at least the one before it.
func (o Options) floors() []float64 {
	out := make([]float64, o.MaxDepth+1)
	last := -1.0
	for i := range out {
		f := last
		switch {
		case i < len(o.Floors):
			f = o.Floors[i]
		case len(o.Floors) > 0:
			f = o.Floors[len(o.Floors)-1]
		}
		if f < last {
			f = last
		}
		out[i] = f
		last = f
	}
	return out
}
