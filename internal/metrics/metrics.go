// Package metrics exposes Prometheus instrumentation for the retrieval and answer pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ria_hunter"

// Metrics groups the pipeline's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	StrategyAttempts   *prometheus.CounterVec
	StrategyDuration   *prometheus.HistogramVec
	EnrichmentFailures *prometheus.CounterVec
	GenerationTotal    *prometheus.CounterVec
	EmbeddingRequests  *prometheus.CounterVec
	CacheRequests      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
}

// New builds unregistered collectors.
func New() *Metrics {
	return &Metrics{
		StrategyAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_attempts_total",
				Help:      "Retrieval strategy attempts by outcome",
			},
			[]string{"strategy", "outcome"}, // ok / empty / error
		),
		StrategyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "strategy_duration_seconds",
				Help:      "Retrieval strategy attempt duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"strategy"},
		),
		EnrichmentFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_failures_total",
				Help:      "Failed executive / private fund enrichment lookups",
			},
			[]string{"lookup"},
		),
		GenerationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_total",
				Help:      "Answer generations by provider and outcome",
			},
			[]string{"provider", "outcome"}, // ok / fallback / error
		),
		EmbeddingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_requests_total",
				Help:      "Embedding requests by model and status",
			},
			[]string{"model", "status"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Routing and plan cache lookups",
			},
			[]string{"cache", "result"}, // hit / miss
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.StrategyAttempts,
		m.StrategyDuration,
		m.EnrichmentFailures,
		m.GenerationTotal,
		m.EmbeddingRequests,
		m.CacheRequests,
		m.SearchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveStrategy(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
	m.StrategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) EnrichmentFailed(lookup string) {
	if m == nil {
		return
	}
	m.EnrichmentFailures.WithLabelValues(lookup).Inc()
}

func (m *Metrics) Generation(provider, outcome string) {
	if m == nil {
		return
	}
	m.GenerationTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Embedding(model, status string) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(model, status).Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
}
