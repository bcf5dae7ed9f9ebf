// Package metrics provides Prometheus metrics for the SOCKS5 demo server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "socks5d"

// Observer is the metrics surface cmd/socks5d's accept loop and relay
// depend on. The core socks5 package never imports prometheus directly -
// it has no concept of metrics at all - so this interface lives in the
// demo host, and *Metrics below is the concrete Prometheus-backed
// implementation of it. A caller that doesn't want metrics can pass a
// NopObserver instead.
type Observer interface {
	ConnectionAccepted()
	ConnectionClosed()
	AuthOutcome(method string, ok bool)
	CommandHandled(command string)
	ConnectLatency(seconds float64)
	BytesRelayed(direction string, n int)
	RelayError(errorType string)
}

// Metrics contains the Prometheus metrics for a SOCKS5 listener.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	AuthOutcomes      *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
	ConnectLatency    prometheus.Histogram
	BytesRelayed      *prometheus.CounterVec
	RelayErrors       *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default, DefaultRegisterer-backed Metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against reg,
// so tests and multiple listeners in one process can avoid collisions.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently active SOCKS5 control connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total SOCKS5 control connections accepted",
		}),
		AuthOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Total authentication attempts by method and outcome",
		}, []string{"method", "outcome"}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total requests by command",
		}, []string{"command"}),
		ConnectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Histogram of CONNECT dial latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		BytesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_relayed_total",
			Help:      "Total bytes relayed by direction",
		}, []string{"direction"}),
		RelayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Total relay errors by type",
		}, []string{"error_type"}),
	}
}

func (m *Metrics) ConnectionAccepted() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.ConnectionsActive.Dec()
}

func (m *Metrics) AuthOutcome(method string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.AuthOutcomes.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) CommandHandled(command string) {
	m.CommandsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) ConnectLatency(seconds float64) {
	m.ConnectLatency.Observe(seconds)
}

func (m *Metrics) BytesRelayed(direction string, n int) {
	m.BytesRelayed.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RelayError(errorType string) {
	m.RelayErrors.WithLabelValues(errorType).Inc()
}

// NopObserver discards every observation. Useful for tests and for hosts
// that don't want a Prometheus dependency wired in at all.
type NopObserver struct{}

func (NopObserver) ConnectionAccepted()      {}
func (NopObserver) ConnectionClosed()        {}
func (NopObserver) AuthOutcome(string, bool) {}
func (NopObserver) CommandHandled(string)    {}
func (NopObserver) ConnectLatency(float64)   {}
func (NopObserver) BytesRelayed(string, int) {}
func (NopObserver) RelayError(string)        {}
