package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// Metrics implements storekit.Metrics using Prometheus.
type Metrics struct {
	purchasesTotal            *prometheus.CounterVec
	purchaseDuration          *prometheus.HistogramVec
	deliveriesTotal           *prometheus.CounterVec
	receiptLoadsTotal         *prometheus.CounterVec
	restoresTotal             *prometheus.CounterVec
	finalizationsTotal        *prometheus.CounterVec
	notificationsTotal        *prometheus.CounterVec
	platformCallsTotal        *prometheus.CounterVec
	platformCallDuration      *prometheus.HistogramVec
	circuitBreakerTransitions *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation for the bridge.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		purchasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "purchases_total",
			Help:      "Total number of purchase attempts by terminal outcome.",
		}, []string{"product_id", "status"}),

		purchaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "purchase_duration_seconds",
			Help:      "Duration of purchase pipelines in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"status"}),

		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "deliveries_total",
			Help:      "Total number of envelopes handed to the callback registry.",
		}, []string{"event", "status"}),

		receiptLoadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "receipt_loads_total",
			Help:      "Total number of receipt loads by source.",
		}, []string{"source"}),

		restoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "restores_total",
			Help:      "Total number of restore operations.",
		}, []string{"status"}),

		finalizationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "finalizations_total",
			Help:      "Total number of transaction finalization attempts.",
		}, []string{"status"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "notifications_total",
			Help:      "Total number of transaction notifications received.",
		}, []string{"source", "status"}),

		platformCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "platform_calls_total",
			Help:      "Total number of calls to the platform backend.",
		}, []string{"operation", "status"}),

		platformCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "platform_call_duration_seconds",
			Help:      "Duration of platform backend calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		circuitBreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storekit",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of platform circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordPurchase(productID, status string) {
	m.purchasesTotal.WithLabelValues(productID, status).Inc()
}

func (m *Metrics) RecordPurchaseDuration(status string, duration time.Duration) {
	m.purchaseDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) RecordDelivery(event storekit.EventKind, status string) {
	m.deliveriesTotal.WithLabelValues(string(event), status).Inc()
}

func (m *Metrics) RecordReceiptLoad(source string) {
	m.receiptLoadsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordRestore(status string) {
	m.restoresTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordFinalize(status string) {
	m.finalizationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordNotification(source, status string) {
	m.notificationsTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) RecordPlatformCall(operation, status string, duration time.Duration) {
	m.platformCallsTotal.WithLabelValues(operation, status).Inc()
	m.platformCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerTransitions.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) storekit.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
