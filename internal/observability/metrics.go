// Package observability registers deskdata's Prometheus metrics. A single
// Metrics value is built at startup and handed to each component; a nil
// *Metrics is valid and records nothing, which keeps tests and CLI one-shots
// free of registry plumbing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deskdata"

// Metrics holds every collector deskdata exports.
type Metrics struct {
	// queriesTotal counts tenant statements by provider and outcome
	// ("ok", "connection_error", "query_error", "config_error").
	queriesTotal *prometheus.CounterVec

	// queryDuration records statement latency by provider.
	queryDuration *prometheus.HistogramVec

	// resolutionsTotal counts resolver lookups by status and cache result.
	resolutionsTotal *prometheus.CounterVec

	// fallbacksTotal counts requests served by the shared default connection.
	fallbacksTotal *prometheus.CounterVec

	// answersTotal counts retrieval answers by winning source.
	answersTotal *prometheus.CounterVec

	// branchDuration records each retrieval branch's latency.
	branchDuration *prometheus.HistogramVec

	// branchErrors counts swallowed branch failures.
	branchErrors *prometheus.CounterVec

	// ingestDocuments counts documents pushed by bulk ingestion.
	ingestDocuments *prometheus.CounterVec

	// httpRequestsTotal counts HTTP requests by method, route and status.
	httpRequestsTotal *prometheus.CounterVec

	// httpDuration records HTTP latency by method and route.
	httpDuration *prometheus.HistogramVec

	buildInfo *prometheus.GaugeVec
}

// NewMetrics registers all collectors against reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenantdb",
			Name:      "queries_total",
			Help:      "Tenant database statements executed, partitioned by provider and outcome.",
		}, []string{"provider", "outcome"}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tenantdb",
			Name:      "query_duration_seconds",
			Help:      "Latency of tenant database statements.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		resolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Tenant configuration lookups, partitioned by status and whether the cache answered.",
		}, []string{"status", "cache"}),

		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenantdb",
			Name:      "fallbacks_total",
			Help:      "Requests served by the shared default connection, partitioned by reason.",
		}, []string{"reason"}),

		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "answers_total",
			Help:      "Retrieval answers, partitioned by winning source.",
		}, []string{"source"}),

		branchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "branch_duration_seconds",
			Help:      "Latency of each retrieval branch.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}, []string{"branch"}),

		branchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "branch_errors_total",
			Help:      "Retrieval branch failures that were downgraded to empty results.",
		}, []string{"branch"}),

		ingestDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents pushed to the knowledge base, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, partitioned by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		buildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Always 1; labels carry the running version and instance id.",
		}, []string{"version", "instance"}),
	}
}

// ObserveQuery records one tenant statement.
func (m *Metrics) ObserveQuery(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(provider, outcome).Inc()
	m.queryDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveResolution records one resolver lookup.
func (m *Metrics) ObserveResolution(status string, cached bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	m.resolutionsTotal.WithLabelValues(status, cache).Inc()
}

// ObserveFallback records a request served by the default connection.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveAnswer records the source that won a retrieval.
func (m *Metrics) ObserveAnswer(source string) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(source).Inc()
}

// ObserveBranch records one retrieval branch.
func (m *Metrics) ObserveBranch(branch string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.branchDuration.WithLabelValues(branch).Observe(d.Seconds())
	if err != nil {
		m.branchErrors.WithLabelValues(branch).Inc()
	}
}

// ObserveIngest records one ingested document.
func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.ingestDocuments.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, statusText(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetBuildInfo publishes the build_info gauge.
func (m *Metrics) SetBuildInfo(version, instanceID string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, instanceID).Set(1)
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
