// Package metrics exposes Prometheus instrumentation for the feed plane:
// request provenance, upstream call volume and latency, and cache
// fallback serves.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors with their registry.
type Metrics struct {
	registry *prometheus.Registry

	feedRequests     *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	cacheFallbacks   *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var global atomic.Pointer[Metrics]

func init() {
	global.Store(newMetrics("feedgate", false))
}

// Init replaces the global metrics with a fresh set under the given
// namespace, registering the standard Go and process collectors.
func Init(namespace string) {
	if namespace == "" {
		namespace = "feedgate"
	}
	global.Store(newMetrics(namespace, true))
}

// Global returns the process-wide metrics.
func Global() *Metrics {
	return global.Load()
}

func newMetrics(namespace string, withRuntimeCollectors bool) *Metrics {
	registry := prometheus.NewRegistry()
	if withRuntimeCollectors {
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	m := &Metrics{
		registry: registry,

		feedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_requests_total",
				Help:      "Feed requests served, labeled by feed and result provenance",
			},
			[]string{"feed", "source"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream provider HTTP calls, labeled by provider and status code",
			},
			[]string{"provider", "code"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream provider HTTP call latency",
				Buckets:   defaultBuckets,
			},
			[]string{"provider"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_rate_limited_total",
				Help:      "Upstream 429 responses by provider",
			},
			[]string{"provider"},
		),
		cacheFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_fallback_total",
				Help:      "Stale cache values served after an upstream failure",
			},
			[]string{"key"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency by route and status code",
				Buckets:   defaultBuckets,
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		m.feedRequests,
		m.upstreamRequests,
		m.upstreamDuration,
		m.rateLimited,
		m.cacheFallbacks,
		m.httpDuration,
	)
	return m
}

// RecordFeedRequest counts one served feed request with its provenance
// (upstream, cache, fallback, rate_limited, error).
func (m *Metrics) RecordFeedRequest(feed, source string) {
	m.feedRequests.WithLabelValues(feed, source).Inc()
}

// ObserveUpstreamRequest counts one upstream call and its latency.
// status 0 means the call never completed (timeout, connection error).
func (m *Metrics) ObserveUpstreamRequest(provider string, status int, d time.Duration) {
	m.upstreamRequests.WithLabelValues(provider, statusLabel(status)).Inc()
	m.upstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordRateLimited counts one upstream 429.
func (m *Metrics) RecordRateLimited(provider string) {
	m.rateLimited.WithLabelValues(provider).Inc()
}

// RecordFallback counts one stale value served for key.
func (m *Metrics) RecordFallback(key string) {
	m.cacheFallbacks.WithLabelValues(key).Inc()
}

// ObserveHTTPRequest counts one API request and its latency.
func (m *Metrics) ObserveHTTPRequest(route string, status int, d time.Duration) {
	m.httpDuration.WithLabelValues(route, statusLabel(status)).Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
