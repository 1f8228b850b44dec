// Package metrics exposes catalog counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leapmeta"

// Metrics holds the registry and the catalog collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	AssetsCollected *prometheus.CounterVec
	CollectorErrors *prometheus.CounterVec
	StaleAssets     prometheus.Counter
	RunDuration     prometheus.Histogram
	HTTPRequests    *prometheus.CounterVec
}

// New creates a registry with the catalog metrics and the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_runs_total",
			Help:      "Collection runs by final status.",
		}, []string{"status"}),
		AssetsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_collected_total",
			Help:      "Assets collected, by source.",
		}, []string{"source"}),
		CollectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_errors_total",
			Help:      "Source-level collector failures, by source.",
		}, []string{"source"}),
		StaleAssets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_assets_total",
			Help:      "Assets newly marked stale.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_run_duration_seconds",
			Help:      "Wall time of collection runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Runs,
		m.AssetsCollected,
		m.CollectorErrors,
		m.StaleAssets,
		m.RunDuration,
		m.HTTPRequests,
	)
	return m
}

// ObserveRun records a finished collection run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// AddAssets counts assets collected from a source.
func (m *Metrics) AddAssets(source string, n int) {
	if m == nil {
		return
	}
	m.AssetsCollected.WithLabelValues(source).Add(float64(n))
}

// CollectorFailed counts a failed source.
func (m *Metrics) CollectorFailed(source string) {
	if m == nil {
		return
	}
	m.CollectorErrors.WithLabelValues(source).Inc()
}

// AddStale counts assets newly marked stale.
func (m *Metrics) AddStale(n int) {
	if m == nil {
		return
	}
	m.StaleAssets.Add(float64(n))
}

// ObserveRequest counts an HTTP request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
