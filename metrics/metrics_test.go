package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns the sample values of the named family keyed by the joined label values.
func gathered(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			key := ""
			for _, label := range metric.GetLabel() {
				key += label.GetValue() + "/"
			}
			out[key] = value(metric)
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("componentctl", reg)

	m.ObserveOperation("register", nil, 10*time.Millisecond)
	m.ObserveOperation("register", errors.New("boom"), time.Millisecond)
	m.ObserveOperation("transfer", nil, time.Millisecond)
	m.BindingRebuilt()
	m.DomainEvent("ComponentRegistered")
	m.DomainEvent("ComponentRegistered")
	m.SetNotifications(3)

	assert.Equal(t, map[string]float64{
		"register/success/": 1,
		"register/failure/": 1,
		"transfer/success/": 1,
	}, gathered(t, reg, "componentctl_registry_operations_total"))

	assert.Equal(t, map[string]float64{
		"register/": 2,
		"transfer/": 1,
	}, gathered(t, reg, "componentctl_registry_operation_duration_seconds"))

	assert.Equal(t, map[string]float64{"": 1}, gathered(t, reg, "componentctl_registry_binding_rebuilds_total"))
	assert.Equal(t, map[string]float64{"ComponentRegistered/": 2}, gathered(t, reg, "componentctl_registry_events_total"))
	assert.Equal(t, map[string]float64{"": 3}, gathered(t, reg, "componentctl_notifications_queued"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("register", nil, time.Second)
		m.BindingRebuilt()
		m.DomainEvent("StatusUpdated")
		m.SetNotifications(1)
	})
}

func TestNewMetricsServer(t *testing.T) {
	_, err := NewMetricsServer("", prometheus.NewRegistry())
	assert.Error(t, err)

	srv, err := NewMetricsServer("127.0.0.1:0", prometheus.NewRegistry())
	require.NoError(t, err)
	assert.NotNil(t, srv)
}
