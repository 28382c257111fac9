// Package metrics provides Prometheus instrumentation for BoyStats.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequests counts Riot API attempts by endpoint and status.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boystats_upstream_requests_total",
		Help: "Riot API requests by endpoint and HTTP status",
	}, []string{"endpoint", "status"})

	// UpstreamLatency tracks Riot API round-trip time.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boystats_upstream_latency_seconds",
		Help:    "Riot API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boystats_rate_limit_retries_total",
		Help: "Retries issued after HTTP 429 responses",
	})

	// MatchesFetched counts detail fetch outcomes: kept, filtered, failed.
	MatchesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boystats_matches_fetched_total",
		Help: "Match detail fetch outcomes",
	}, []string{"outcome"})

	// DiscoveryStops counts discovery runs cut short by their deadline.
	DiscoveryStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boystats_discovery_budget_stops_total",
		Help: "Discovery runs stopped by the time budget",
	})

	// CacheCommits counts dataset commits by outcome.
	CacheCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boystats_cache_commits_total",
		Help: "Dataset commits by outcome",
	}, []string{"outcome"})

	// DatasetMatches tracks the persisted dataset size.
	DatasetMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boystats_dataset_matches",
		Help: "Matches in the persisted dataset",
	})

	// WebSocketClients tracks connected progress listeners.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boystats_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boystats_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boystats_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps label cardinality bounded ({backupID}).
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
