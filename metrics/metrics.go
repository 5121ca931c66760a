// Package metrics provides the prometheus collectors for registry operations
// and the HTTP server exposing them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the client's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Gateway operations by name and outcome
	Operations *prometheus.CounterVec

	// Gateway operation latency including confirmation
	OperationDuration *prometheus.HistogramVec

	// Registry handles built
	BindingRebuilds prometheus.Counter

	// Registry events republished, by event type
	DomainEvents *prometheus.CounterVec

	// Notifications currently queued
	Notifications prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_operation_duration_seconds",
			Help:      "Duration of registry operations including confirmation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),

		BindingRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_binding_rebuilds_total",
			Help:      "Registry handles built after a signer change",
		}),

		DomainEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_events_total",
			Help:      "Registry events received by type",
		}, []string{"event"}),

		Notifications: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_queued",
			Help:      "Notifications currently queued",
		}),
	}
}

// ObserveOperation records an operation outcome and its duration.
func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// BindingRebuilt counts a new registry handle.
func (m *Metrics) BindingRebuilt() {
	if m != nil {
		m.BindingRebuilds.Inc()
	}
}

// DomainEvent counts a republished registry event.
func (m *Metrics) DomainEvent(eventType string) {
	if m != nil {
		m.DomainEvents.WithLabelValues(eventType).Inc()
	}
}

// SetNotifications records the notification queue length.
func (m *Metrics) SetNotifications(n int) {
	if m != nil {
		m.Notifications.Set(float64(n))
	}
}
