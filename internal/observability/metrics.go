package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Metric status labels.
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the WPS gateway.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// WPS operation metrics
	WPSOperationsTotal   *prometheus.CounterVec
	WPSOperationDuration *prometheus.HistogramVec
	WPSParseWarnings     *prometheus.CounterVec

	// Service registry metrics
	ServicesRegistered prometheus.Gauge

	// Execution metrics
	ExecutionTransitionsTotal *prometheus.CounterVec
	ExecutionsActive          prometheus.Gauge
	ExecutionStatusQueries    prometheus.Histogram

	// Webhook metrics
	WebhookDeliveryDuration *prometheus.HistogramVec
	WebhookDeliveryTotal    *prometheus.CounterVec

	// Redis metrics
	RedisOperationsTotal   *prometheus.CounterVec
	RedisOperationDuration *prometheus.HistogramVec
	RedisConnectionsActive prometheus.Gauge
	RedisErrorsTotal       *prometheus.CounterVec
}

var (
	// globalMetrics is the singleton metrics instance.
	globalMetrics *Metrics
)

// InitMetrics initializes and registers all Prometheus metrics.
// Returns the existing metrics instance if already initialized (idempotent).
func InitMetrics(namespace string) *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	if namespace == "" {
		namespace = "wpsgate"
	}

	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		HTTPResponseSizeBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		WPSOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wps_operations_total",
				Help:      "Total number of WPS operations (GetCapabilities, DescribeProcess, Execute)",
			},
			[]string{"operation", "status"},
		),

		WPSOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wps_operation_duration_seconds",
				Help:      "WPS operation duration in seconds, including parsing",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		WPSParseWarnings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wps_parse_warnings_total",
				Help:      "Total number of non-fatal warnings raised while parsing WPS documents",
			},
			[]string{"operation", "code"},
		),

		ServicesRegistered: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_registered",
				Help:      "Current number of registered WPS services",
			},
		),

		ExecutionTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_transitions_total",
				Help:      "Total number of execution status transitions",
			},
			[]string{"from", "to"},
		),

		ExecutionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executions_active",
				Help:      "Number of executions that have not reached a terminal state",
			},
		),

		ExecutionStatusQueries: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_status_queries",
				Help:      "Status documents applied per settled execution",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 20, 50},
			},
		),

		WebhookDeliveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Webhook delivery latency in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),

		WebhookDeliveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_total",
				Help:      "Total number of webhook delivery attempts",
			},
			[]string{"status", "http_status"},
		),

		RedisOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redis_operations_total",
				Help:      "Total number of Redis operations",
			},
			[]string{"operation", "status"},
		),

		RedisOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "redis_operation_duration_seconds",
				Help:      "Redis operation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"operation"},
		),

		RedisConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "redis_connections_active",
				Help:      "Number of active Redis connections",
			},
		),

		RedisErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redis_errors_total",
				Help:      "Total number of Redis errors",
			},
			[]string{"operation", "error_type"},
		),
	}

	globalMetrics = m
	return m
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int) {
	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordWPSOperation records a GetCapabilities, DescribeProcess or Execute call.
func (m *Metrics) RecordWPSOperation(operation string, duration time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.WPSOperationsTotal.WithLabelValues(operation, status).Inc()
	m.WPSOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordParseWarning counts one parse warning.
func (m *Metrics) RecordParseWarning(operation, code string) {
	m.WPSParseWarnings.WithLabelValues(operation, code).Inc()
}

// SetServiceCount sets the number of registered services.
func (m *Metrics) SetServiceCount(count int) {
	m.ServicesRegistered.Set(float64(count))
}

// RecordExecutionTransition records a status change. Leaving Initialized
// counts an execution as active; reaching a terminal state settles it.
func (m *Metrics) RecordExecutionTransition(from, to string, terminal bool, statusQueries int) {
	m.ExecutionTransitionsTotal.WithLabelValues(from, to).Inc()
	if from == "Initialized" {
		m.ExecutionsActive.Inc()
	}
	if terminal {
		m.ExecutionsActive.Dec()
		m.ExecutionStatusQueries.Observe(float64(statusQueries))
	}
}

// RecordWebhookDelivery records webhook delivery metrics.
func (m *Metrics) RecordWebhookDelivery(duration time.Duration, httpStatusCode int, err error) {
	status := statusSuccess
	httpStatus := strconv.Itoa(httpStatusCode)

	if err != nil || httpStatusCode >= 400 {
		status = statusError
	}

	m.WebhookDeliveryDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.WebhookDeliveryTotal.WithLabelValues(status, httpStatus).Inc()
}

// RecordRedisOperation records Redis operation metrics.
func (m *Metrics) RecordRedisOperation(operation string, duration time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
		m.RedisErrorsTotal.WithLabelValues(operation, "general").Inc()
	}
	m.RedisOperationsTotal.WithLabelValues(operation, status).Inc()
	m.RedisOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetRedisConnectionsActive sets the number of active Redis connections.
func (m *Metrics) SetRedisConnectionsActive(count int) {
	m.RedisConnectionsActive.Set(float64(count))
}

// HTTPInFlightInc increments the in-flight HTTP request counter.
func (m *Metrics) HTTPInFlightInc() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTPInFlightDec decrements the in-flight HTTP request counter.
func (m *Metrics) HTTPInFlightDec() {
	m.HTTPRequestsInFlight.Dec()
}
