package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks outbound WPS requests by operation and HTTP status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_transport_requests_total",
			Help: "Total number of outbound WPS requests",
		},
		[]string{"operation", "status"},
	)

	// RequestDuration tracks outbound request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wpsgate_transport_request_duration_seconds",
			Help:    "Outbound WPS request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RateLimitedTotal tracks requests abandoned while waiting for the host limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_transport_rate_limited_total",
			Help: "Total number of requests abandoned while waiting for the per-host limiter",
		},
		[]string{"host"},
	)
)
