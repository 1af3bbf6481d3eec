// Package metrics defines Prometheus collectors used by the indexer,
// the search service and the trigger listeners.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	DocsIndexedTotal   *prometheus.CounterVec
	DocsDeletedTotal   *prometheus.CounterVec
	IndexCommitsTotal  *prometheus.CounterVec
	RebuildDuration    prometheus.Histogram
	IndexDocCount      prometheus.Gauge
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	TriggerEventsTotal *prometheus.CounterVec
}

// New creates all the collectors and registers them using reg.
// With nil reg, the collectors are not registered (useful for tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsearch_docs_indexed_total",
				Help: "Total documents added to the index by record type.",
			},
			[]string{"record_type"},
		),
		DocsDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsearch_docs_deleted_total",
				Help: "Total documents deleted from the index by record type.",
			},
			[]string{"record_type"},
		),
		IndexCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsearch_index_commits_total",
				Help: "Total index commit operations by status.",
			},
			[]string{"status"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recsearch_rebuild_duration_seconds",
				Help:    "Duration of full index rebuilds in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		IndexDocCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recsearch_index_document_count",
				Help: "Number of documents in the index after the last commit.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsearch_search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, empty, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recsearch_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recsearch_cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recsearch_cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		TriggerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recsearch_trigger_events_total",
				Help: "Total record change events by source, action and status.",
			},
			[]string{"source", "action", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DocsIndexedTotal,
			m.DocsDeletedTotal,
			m.IndexCommitsTotal,
			m.RebuildDuration,
			m.IndexDocCount,
			m.SearchQueriesTotal,
			m.SearchLatency,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.TriggerEventsTotal,
		)
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
