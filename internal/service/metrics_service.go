package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "capstone"

// MetricsService owns a private Prometheus registry with HTTP, cache, allocation and proposal
// workflow collectors. Every recorder is safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.HistogramVec
	cacheWrite      prometheus.Histogram

	transitions       *prometheus.CounterVec
	bulkItems         *prometheus.CounterVec
	sideEffects       *prometheus.CounterVec
	recommendations   prometheus.Counter
	recommendedPairs  *prometheus.CounterVec
	allocationsStored *prometheus.CounterVec
}

// NewMetricsService registers the collectors together with the Go runtime and process collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookup_seconds",
			Help:      "Recommendation cache lookups by result",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"result"}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_write_seconds",
			Help:      "Latency of recommendation cache writes",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposal_transitions_total",
			Help:      "Proposal status transitions by actor role, target status and outcome",
		}, []string{"role", "target", "outcome"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposal_bulk_items_total",
			Help:      "Items seen by bulk transitions grouped by result",
		}, []string{"result"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proposal_side_effects_total",
			Help:      "Follow-up actions after status changes grouped by kind and outcome",
		}, []string{"kind", "outcome"}),
		recommendations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "allocation_recommendations_total",
			Help:      "Recommendation runs executed",
		}),
		recommendedPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "allocation_recommended_pairs_total",
			Help:      "Recommended pairings grouped by source (PREFERENCE, FALLBACK, UNALLOCATED)",
		}, []string{"source"}),
		allocationsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "allocations_total",
			Help:      "Allocations created or reviewed grouped by resulting status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheWrite,
		m.transitions, m.bulkItems, m.sideEffects, m.recommendations, m.recommendedPairs, m.allocationsStored,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records latency and count for one request. route is the gin route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
}

// RecordCacheOperation records one cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts a single proposal status change attempt.
func (m *MetricsService) RecordTransition(role, target string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(role, target, outcomeLabel(err)).Inc()
}

// RecordBulkResult counts processed, failed and invalid bulk items.
func (m *MetricsService) RecordBulkResult(processed, failed, invalid int) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues("processed").Add(float64(processed))
	m.bulkItems.WithLabelValues("failed").Add(float64(failed))
	m.bulkItems.WithLabelValues("invalid").Add(float64(invalid))
}

// RecordSideEffect counts the outcome of a follow-up action.
func (m *MetricsService) RecordSideEffect(kind string, err error) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind, outcomeLabel(err)).Inc()
}

// RecordRecommendation counts one engine run and its pairings.
func (m *MetricsService) RecordRecommendation(preference, fallback, unallocated int) {
	if m == nil {
		return
	}
	m.recommendations.Inc()
	m.recommendedPairs.WithLabelValues("PREFERENCE").Add(float64(preference))
	m.recommendedPairs.WithLabelValues("FALLBACK").Add(float64(fallback))
	m.recommendedPairs.WithLabelValues("UNALLOCATED").Add(float64(unallocated))
}

// RecordAllocation counts an allocation reaching a status.
func (m *MetricsService) RecordAllocation(status string) {
	if m == nil {
		return
	}
	m.allocationsStored.WithLabelValues(status).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
