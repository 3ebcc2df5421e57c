// Package middleware provides HTTP middleware for the LingoBridge server.
// This file contains the Prometheus metrics middleware and the record
// helpers other packages use to feed translation and cache metrics.
package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingobridge_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingobridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingobridge_active_connections",
			Help: "Number of currently active HTTP connections",
		},
	)

	translationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingobridge_translation_requests_total",
			Help: "Translation requests grouped by provider, mode and outcome",
		},
		[]string{"provider", "mode", "outcome"},
	)

	translationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingobridge_translation_errors_total",
			Help: "Translation errors grouped by canonical code and provider",
		},
		[]string{"code", "provider"},
	)

	translationSegmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingobridge_translation_segments_total",
			Help: "Translated segments grouped by origin (cache or provider)",
		},
		[]string{"origin"},
	)

	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lingobridge_active_streams",
			Help: "Number of currently running streaming translations",
		},
	)

	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingobridge_cache_hits_total",
			Help: "Translation cache hits grouped by tier",
		},
		[]string{"tier"},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingobridge_cache_misses_total",
			Help: "Translation cache misses across both tiers",
		},
	)

	cacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lingobridge_cache_size",
			Help: "Current number of cache entries grouped by tier",
		},
		[]string{"tier"},
	)

	// metricsRegistered ensures collectors are only registered once.
	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all collectors. Safe to call multiple times.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		activeConnections,
		translationRequestsTotal,
		translationErrorsTotal,
		translationSegmentsTotal,
		activeStreams,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheSize,
	)
}

// PrometheusMiddleware collects request count, duration and active
// connection metrics for every route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.Next()
			return
		}
		RegisterMetrics()

		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		activeConnections.Inc()
		defer activeConnections.Dec()

		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// normalizePath keeps metric label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case path == "/", path == "/healthz", path == "/metrics":
		return path
	case path == "/v1/translate":
		return "/v1/translate"
	case path == "/v1/translate/stream":
		return "/v1/translate/stream"
	case len(path) >= 9 && path[:9] == "/v1/cache":
		return "/v1/cache/*"
	default:
		if len(path) > 50 {
			return path[:50] + "..."
		}
		return path
	}
}

// MetricsHandler serves the /metrics endpoint.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTranslation counts a finished translation request.
func RecordTranslation(provider, mode, outcome string) {
	if !IsMetricsEnabled() {
		return
	}
	translationRequestsTotal.WithLabelValues(provider, mode, outcome).Inc()
}

// RecordTranslationError counts a translation failure by canonical code.
func RecordTranslationError(code, provider string) {
	if !IsMetricsEnabled() {
		return
	}
	translationErrorsTotal.WithLabelValues(code, provider).Inc()
}

// RecordSegments counts delivered segments by origin ("cache" or "provider").
func RecordSegments(origin string, n int) {
	if !IsMetricsEnabled() {
		return
	}
	if n > 0 {
		translationSegmentsTotal.WithLabelValues(origin).Add(float64(n))
	}
}

// StreamStarted increments the active stream gauge.
func StreamStarted() {
	if !IsMetricsEnabled() {
		return
	}
	activeStreams.Inc()
}

// StreamFinished decrements the active stream gauge.
func StreamFinished() {
	if !IsMetricsEnabled() {
		return
	}
	activeStreams.Dec()
}

// RecordCacheHit counts a cache hit on the given tier ("memory" or "db").
func RecordCacheHit(tier string) {
	if !IsMetricsEnabled() {
		return
	}
	cacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a lookup that missed both tiers.
func RecordCacheMiss() {
	if !IsMetricsEnabled() {
		return
	}
	cacheMissesTotal.Inc()
}

// SetCacheSize sets the entry-count gauge for a tier.
func SetCacheSize(tier string, size int) {
	if !IsMetricsEnabled() {
		return
	}
	cacheSize.WithLabelValues(tier).Set(float64(size))
}
