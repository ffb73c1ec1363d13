// File: /metrics/metrics.go

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chyrp_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chyrp_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chyrp_cache_hits_total",
		Help: "Read-through cache hits by key family.",
	}, []string{"family"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chyrp_cache_misses_total",
		Help: "Read-through cache misses by key family.",
	}, []string{"family"})

	ViewsCounted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chyrp_post_views_counted_total",
		Help: "First views that incremented a post's view_count.",
	})

	WebmentionsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chyrp_webmentions_verified_total",
		Help: "Webmention verification outcomes.",
	}, []string{"result"})
)
