// Package metrics internal/infrastructure/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the parser service.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	UpdatesTotal       *prometheus.CounterVec
	FetchFailuresTotal *prometheus.CounterVec
	PairsCached        prometheus.Gauge
	SnapshotVersion    prometheus.Gauge
	ResolveDuration    prometheus.Histogram
}

// NewMetrics registers and returns the service collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		UpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_updates_total",
				Help: "Total number of rate cache update attempts by outcome",
			},
			[]string{"outcome"},
		),

		FetchFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fetch_failures_total",
				Help: "Total number of failed upstream fetches by source",
			},
			[]string{"source"},
		),

		PairsCached: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_pairs_cached",
				Help: "Number of rate pairs in the published snapshot",
			},
		),

		SnapshotVersion: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_snapshot_version",
				Help: "Version of the published snapshot",
			},
		),

		ResolveDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rate_resolve_duration_seconds",
				Help:    "Rate resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
