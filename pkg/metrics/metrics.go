package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for contractforge
type Metrics struct {
	// Counters (cumulative values)
	HTTPRequestsTotal    *prometheus.CounterVec
	GenerationsTotal     *prometheus.CounterVec
	DeploymentsTotal     *prometheus.CounterVec
	PaymentsTotal        *prometheus.CounterVec
	StoreOperationsTotal *prometheus.CounterVec
	WebhookEventsTotal   *prometheus.CounterVec

	// Gauges (current values)
	WebSocketClients prometheus.Gauge

	// Histograms (distributions)
	HTTPRequestDuration    *prometheus.HistogramVec
	GenerationDuration     prometheus.Histogram
	DeploymentDuration     prometheus.Histogram
	DeploymentGasUsed      prometheus.Histogram
	StoreOperationDuration *prometheus.HistogramVec
}

// New creates and registers all metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "contractforge"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		GenerationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "generations_total",
			Help:      "Total number of generation calls by outcome",
		}, []string{"outcome"}),
		DeploymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_total",
			Help:      "Total number of deployments by outcome",
		}, []string{"outcome"}),
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "payments_total",
			Help:      "Total number of recorded payments by outcome",
		}, []string{"outcome"}),
		StoreOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of contract store operations",
		}, []string{"backend", "operation", "result"}),
		WebhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook deliveries by event type and result",
		}, []string{"event", "result"}),

		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Current number of connected WebSocket clients",
		}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		GenerationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "duration_seconds",
			Help:      "Text-generation call duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80}, // completions are slow
		}),
		DeploymentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "Deployment duration including confirmation wait",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DeploymentGasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "gas_used",
			Help:      "Gas used by deployment transactions",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 8),
		}),
		StoreOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Contract store operation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}, // 100μs to 500ms
		}, []string{"backend", "operation"}),
	}
}

// NewNop returns metrics bound to a private registry, for tests and offline commands.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "")
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveHTTPRequest records one served HTTP request
func (m *Metrics) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveGeneration records a generation call; label is "structured", "fallback" or "error"
func (m *Metrics) ObserveGeneration(label string, duration time.Duration) {
	m.GenerationsTotal.WithLabelValues(label).Inc()
	m.GenerationDuration.Observe(duration.Seconds())
}

// ObserveDeployment records a deployment attempt
func (m *Metrics) ObserveDeployment(err error, gasUsed uint64, duration time.Duration) {
	m.DeploymentsTotal.WithLabelValues(outcome(err)).Inc()
	m.DeploymentDuration.Observe(duration.Seconds())
	if err == nil {
		m.DeploymentGasUsed.Observe(float64(gasUsed))
	}
}

// RecordPayment increments the payment counter; label is "applied", "unchanged", "ignored" or "error"
func (m *Metrics) RecordPayment(label string) {
	m.PaymentsTotal.WithLabelValues(label).Inc()
}

// ObserveStoreOperation records one contract store call
func (m *Metrics) ObserveStoreOperation(backend, operation string, err error, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(backend, operation, outcome(err)).Inc()
	m.StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordWebhook counts one webhook delivery; result is "delivered", "failed" or "dropped"
func (m *Metrics) RecordWebhook(event, result string) {
	m.WebhookEventsTotal.WithLabelValues(event, result).Inc()
}

// UpdateWebSocketClients sets the connected clients gauge
func (m *Metrics) UpdateWebSocketClients(count int) {
	m.WebSocketClients.Set(float64(count))
}
