package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/invigilation-api/internal/models"
)

// durationTally keeps a running count and total so snapshots can report averages
// without reading the Prometheus collectors back.
type durationTally struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

func (t *durationTally) add(d time.Duration) {
	t.count.Add(1)
	t.nanos.Add(uint64(d.Nanoseconds()))
}

func (t *durationTally) averageMs() (uint64, float64) {
	n := t.count.Load()
	if n == 0 {
		return 0, 0
	}
	return n, float64(t.nanos.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns the Prometheus registry for HTTP traffic, the Redis cache,
// scheduling store queries and the planner.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
	cacheLookup  prometheus.Histogram
	cacheWrite   prometheus.Histogram
	cacheResults *prometheus.CounterVec
	cacheRatio   prometheus.Gauge
	storeQueries *prometheus.HistogramVec
	planned      *prometheus.CounterVec
	validations  *prometheus.CounterVec

	requests      durationTally
	storeCalls    durationTally
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	scheduled     atomic.Uint64
	skipped       atomic.Uint64
	validBookings atomic.Uint64
	rejected      atomic.Uint64
}

// NewMetricsService builds a private registry with the service collectors and the Go runtime collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route template",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route template and status",
		}, []string{"method", "path", "status"}),
		cacheLookup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Redis lookup latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Redis write latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by key namespace and result",
		}, []string{"namespace", "result"}),
		cacheRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Share of cache lookups served from Redis",
		}),
		storeQueries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Scheduling store query latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		planned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "scheduler",
			Name:      "planned_total",
			Help:      "Planner requests by outcome",
		}, []string{"outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "scheduler",
			Name:      "validations_total",
			Help:      "Booking validations by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.httpDuration, m.httpTotal,
		m.cacheLookup, m.cacheWrite, m.cacheResults, m.cacheRatio,
		m.storeQueries, m.planned, m.validations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(method, path, code).Inc()
	m.requests.add(duration)
}

// RecordCacheOperation records a lookup and refreshes the hit ratio. Any
// result other than "hit" counts as a miss in the ratio.
func (m *MetricsService) RecordCacheOperation(namespace, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLookup.Observe(duration.Seconds())
	m.cacheResults.WithLabelValues(namespace, result).Inc()
	if result == "hit" {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	if ratio, ok := m.hitRatio(); ok {
		m.cacheRatio.Set(ratio)
	}
}

// ObserveCacheWrite records the latency of a cache set.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records one scheduling store call.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeQueries.WithLabelValues(label).Observe(duration.Seconds())
	m.storeCalls.add(duration)
}

// RecordPlanOutcome counts the placed and skipped requests of one planner batch.
func (m *MetricsService) RecordPlanOutcome(scheduled, skipped int) {
	if m == nil {
		return
	}
	m.planned.WithLabelValues("scheduled").Add(float64(scheduled))
	m.planned.WithLabelValues("skipped").Add(float64(skipped))
	m.scheduled.Add(uint64(scheduled))
	m.skipped.Add(uint64(skipped))
}

// RecordValidation counts a booking validation outcome.
func (m *MetricsService) RecordValidation(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.validations.WithLabelValues("valid").Inc()
		m.validBookings.Add(1)
		return
	}
	m.validations.WithLabelValues("invalid").Inc()
	m.rejected.Add(1)
}

// Snapshot returns the counters served by GET /metrics/summary.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	ratio, _ := m.hitRatio()
	requests, avgRequest := m.requests.averageMs()
	queries, avgQuery := m.storeCalls.averageMs()

	return models.SystemMetrics{
		CacheHitRatio:            ratio,
		CacheHits:                m.cacheHits.Load(),
		CacheMisses:              m.cacheMisses.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequest,
		DBQueryCount:             queries,
		AverageDBQueryDurationMs: avgQuery,
		PlannedScheduled:         m.scheduled.Load(),
		PlannedSkipped:           m.skipped.Load(),
		ValidBookings:            m.validBookings.Load(),
		RejectedBookings:         m.rejected.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func (m *MetricsService) hitRatio() (float64, bool) {
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	if hits+misses == 0 {
		return 0, false
	}
	return float64(hits) / float64(hits+misses), true
}
