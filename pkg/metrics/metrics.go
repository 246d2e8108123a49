// Package metrics defines the Prometheus collectors used by the search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	QueryClauseCount      prometheus.Histogram
	ResultCacheHits       prometheus.Counter
	ResultCacheMisses     prometheus.Counter
	BoostCacheLookups     *prometheus.CounterVec
	BoostCacheCompileFail prometheus.Counter
	ValueCacheBytes       prometheus.Gauge
	DictionaryBuilds      *prometheus.CounterVec
	DictionaryBuildTime   prometheus.Histogram
	DocsIndexedTotal      prometheus.Counter
	IndexFlushesTotal     *prometheus.CounterVec
	IndexGeneration       prometheus.Gauge
	IngestMessagesTotal   *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (ok, zero_result, rejected, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryClauseCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bmax_query_clauses",
				Help:    "Number of term clauses built per bmax query.",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		ResultCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Total number of search result cache hits.",
			},
		),
		ResultCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Total number of search result cache misses.",
			},
		),
		BoostCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boost_cache_lookups_total",
				Help: "Boost cache lookups by component and result (hit, miss).",
			},
			[]string{"component", "result"},
		),
		BoostCacheCompileFail: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "boost_cache_compile_failures_total",
				Help: "Boost expressions that could not be compiled and fell back to direct evaluation.",
			},
		),
		ValueCacheBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "value_cache_bytes",
				Help: "Estimated bytes held by per-document value caches of the current generation.",
			},
		),
		DictionaryBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "field_dictionary_builds_total",
				Help: "Field terms dictionary builds by source (index, snapshot) and status.",
			},
			[]string{"source", "status"},
		),
		DictionaryBuildTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "field_dictionary_build_seconds",
				Help:    "Time spent building one field terms dictionary.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_generation",
				Help: "Current index segment generation.",
			},
		),
		IngestMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_messages_total",
				Help: "Kafka ingest messages handled by the index consumer, by outcome.",
			},
			[]string{"outcome"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state by name: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.QueryClauseCount,
		m.ResultCacheHits,
		m.ResultCacheMisses,
		m.BoostCacheLookups,
		m.BoostCacheCompileFail,
		m.ValueCacheBytes,
		m.DictionaryBuilds,
		m.DictionaryBuildTime,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.IndexGeneration,
		m.IngestMessagesTotal,
		m.BreakerState,
	)

	return m
}

// NewUnregistered returns collectors bound to a throwaway registry, for tests
// and tools that do not expose a scrape endpoint.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
