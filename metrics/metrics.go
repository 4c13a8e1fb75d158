// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	RecoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reco_requests_total",
			Help: "Calls to the recommendation engine by outcome",
		},
		[]string{"outcome"},
	)

	RecoRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reco_request_duration_seconds",
			Help:    "Recommendation engine call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	RecommendationsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_saved_total",
			Help: "Recommendation headers persisted",
		},
	)

	CatalogLookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_lookup_errors_total",
			Help: "Catalog lookups that failed during enrichment",
		},
		[]string{"lookup"},
	)
)

func RecordAPIRequest(method, route, status string, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordRecoRequest(outcome string, d time.Duration) {
	RecoRequestsTotal.WithLabelValues(outcome).Inc()
	RecoRequestDuration.Observe(d.Seconds())
}
