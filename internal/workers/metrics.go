package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookDeliveriesTotal tracks the total number of webhook deliveries by outcome.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_webhook_deliveries_total",
			Help: "Total number of webhook deliveries",
		},
		[]string{"execution_status", "result"},
	)

	// WebhookLatency tracks the latency of successful webhook deliveries, retries included.
	WebhookLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wpsgate_webhook_latency_seconds",
			Help:    "Webhook delivery latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"execution_status"},
	)

	// WebhookRetriesTotal tracks the total number of webhook delivery retries.
	WebhookRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_webhook_retries_total",
			Help: "Total number of webhook delivery retries",
		},
		[]string{"attempt"},
	)

	// DeadLetterQueueTotal tracks the total number of events moved to DLQ.
	DeadLetterQueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsgate_webhook_dlq_total",
			Help: "Total number of events moved to dead letter queue",
		},
		[]string{"execution_status"},
	)

	// EventStreamLengthGauge tracks the current length of the event stream.
	EventStreamLengthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpsgate_event_stream_length",
			Help: "Current length of the event stream in Redis",
		},
	)

	// ActiveWorkersGauge tracks the current number of active webhook workers.
	ActiveWorkersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wpsgate_active_webhook_workers",
			Help: "Current number of active webhook worker goroutines",
		},
	)
)
