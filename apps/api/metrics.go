package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiMetrics is safe to use as a nil pointer; every recorder is then a no-op.
type apiMetrics struct {
	handler http.Handler

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	treesWritten    *prometheus.CounterVec
	seedsWritten    prometheus.Counter
	importErrors    *prometheus.CounterVec
	stagingCalls    *prometheus.CounterVec
	mapViews        prometheus.Gauge
	submissions     prometheus.Counter
}

func newAPIMetrics(reg *prometheus.Registry) *apiMetrics {
	m := &apiMetrics{
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negrostrees_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "negrostrees_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		treesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negrostrees_tree_records_written_total",
			Help: "Tree records created, by source.",
		}, []string{"source"}),
		seedsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "negrostrees_seed_records_written_total",
			Help: "Seed planting records created.",
		}),
		importErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negrostrees_import_row_errors_total",
			Help: "Rejected rows during bulk imports, by source.",
		}, []string{"source"}),
		stagingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "negrostrees_staging_requests_total",
			Help: "Requests to the staging store, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mapViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "negrostrees_mounted_map_views",
			Help: "Map views currently mounted.",
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "negrostrees_photo_submissions_total",
			Help: "Accepted public photo submissions.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.treesWritten,
		m.seedsWritten,
		m.importErrors,
		m.stagingCalls,
		m.mapViews,
		m.submissions,
	)
	return m
}

func (a *App) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		a.metrics.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		a.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *apiMetrics) recordTreesWritten(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.treesWritten.WithLabelValues(source).Add(float64(n))
}

func (m *apiMetrics) recordSeedsWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.seedsWritten.Add(float64(n))
}

func (m *apiMetrics) recordImportErrors(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importErrors.WithLabelValues(source).Add(float64(n))
}

func (m *apiMetrics) recordStagingCall(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stagingCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *apiMetrics) setMapViews(n int) {
	if m == nil {
		return
	}
	m.mapViews.Set(float64(n))
}

func (m *apiMetrics) recordSubmission() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}
