// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

var (
	// HTTPRequestsTotal counts served requests by method, route template and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksearch_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency per route template.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booksearch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// CatalogRequestsTotal counts catalog searches by outcome: ok, error or cache_hit.
	CatalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booksearch_catalog_requests_total",
		Help: "Remote catalog lookups by outcome",
	}, []string{"outcome"})

	// CatalogRequestDuration observes the latency of remote catalog HTTP calls.
	CatalogRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booksearch_catalog_request_duration_seconds",
		Help:    "Duration of remote catalog HTTP calls in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
