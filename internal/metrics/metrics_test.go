package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestConnectionLifecycle(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.ConnectionAccepted()
	m.ConnectionAccepted()
	if got := gaugeValue(t, m.ConnectionsActive); got != 2 {
		t.Errorf("ConnectionsActive = %v, want 2", got)
	}
	if got := counterValue(t, m.ConnectionsTotal); got != 2 {
		t.Errorf("ConnectionsTotal = %v, want 2", got)
	}

	m.ConnectionClosed()
	if got := gaugeValue(t, m.ConnectionsActive); got != 1 {
		t.Errorf("ConnectionsActive = %v, want 1", got)
	}
}

func TestAuthOutcomeLabels(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.AuthOutcome("password", true)
	m.AuthOutcome("password", false)

	var mm dto.Metric
	if err := m.AuthOutcomes.WithLabelValues("password", "success").Write(&mm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if mm.GetCounter().GetValue() != 1 {
		t.Errorf("success count = %v, want 1", mm.GetCounter().GetValue())
	}
}

func TestNopObserverSatisfiesInterface(t *testing.T) {
	var _ Observer = NopObserver{}
	var _ Observer = (*Metrics)(nil)

	obs := NopObserver{}
	obs.ConnectionAccepted()
	obs.ConnectionClosed()
	obs.AuthOutcome("none", true)
	obs.CommandHandled("connect")
	obs.ConnectLatency(0.01)
	obs.BytesRelayed("up", 128)
	obs.RelayError("dial")
}
