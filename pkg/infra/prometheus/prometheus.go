package prometheus

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
	}

	SearchRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsearch_requests_total",
			Help: "Total number of search requests processed",
		},
		[]string{"kind", "status"},
	)

	SearchLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentsearch_latency_ms",
			Help:    "Search latency in milliseconds by pipeline stage",
			Buckets: latencyBuckets,
		},
		[]string{"kind", "stage"}, // stage is total, plan, embed, expand, hydrate or rank
	)

	LayerCandidates = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsearch_layer_candidates_total",
			Help: "Candidates admitted per expansion layer",
		},
		[]string{"layer"},
	)

	DroppedCandidates = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsearch_dropped_candidates_total",
			Help: "Candidates dropped after a failed or timed out lookup",
		},
		[]string{"layer"},
	)

	CacheRequests = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsearch_cache_requests_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsearch_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentsearch_http_latency_ms",
			Help:    "HTTP request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"method", "route"},
	)

	IndexSize = promauto.With(registerer).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentsearch_index_vectors",
			Help: "Number of vectors in the similarity index",
		},
		[]string{"kind"},
	)
)

type MetricsConfig struct {
	EnableLatency   bool // Per-stage latency histograms
	EnablePerLayer  bool // Layer counters (one series per depth)
	EnableCacheHits bool
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency:   true,
		EnablePerLayer:  true,
		EnableCacheHits: true,
	}
}

var (
	Config   MetricsConfig
	initOnce sync.Once
)

func Initialize(cfg MetricsConfig) {
	Config = cfg
	initOnce.Do(func() {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		prometheus.DefaultRegisterer = registry
		prometheus.DefaultGatherer = registry
	})
}

func Gatherer() prometheus.Gatherer {
	return registry
}

func ObserveStage(kind, stage string, d time.Duration) {
	if !Config.EnableLatency {
		return
	}
	SearchLatency.WithLabelValues(kind, stage).Observe(float64(d.Microseconds()) / 1000)
}

// ObserveHTTP records one served request. route is the matched route pattern,
// never the raw path, to keep the label set bounded.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	HTTPRequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if !Config.EnableLatency {
		return
	}
	HTTPLatency.WithLabelValues(method, route).Observe(float64(d.Microseconds()) / 1000)
}

func ObserveCache(hit bool) {
	if !Config.EnableCacheHits {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(result).Inc()
}

// ExpansionObserver feeds the per-layer counters from the expansion engine.
type ExpansionObserver struct{}

func (ExpansionObserver) ObserveLayer(layer, admitted int) {
	if !Config.EnablePerLayer {
		return
	}
	LayerCandidates.WithLabelValues(strconv.Itoa(layer)).Add(float64(admitted))
}

func (ExpansionObserver) ObserveDropped(layer, dropped int) {
	DroppedCandidates.WithLabelValues(strconv.Itoa(layer)).Add(float64(dropped))
}
