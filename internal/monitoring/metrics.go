package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	InstallsTotal   *prometheus.CounterVec
	UninstallsTotal *prometheus.CounterVec
	ExportedObjects prometheus.Gauge

	// Bus metrics
	BusConnections prometheus.Gauge
	MethodCalls    *prometheus.CounterVec
	SignalsTotal   *prometheus.CounterVec
}

// NewMetrics creates a metrics collector backed by its own registry so that
// multiple instances can coexist in one process (tests in particular).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		InstallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "installd_installs_total",
				Help: "Total number of install operations",
			},
			[]string{"outcome"},
		),
		UninstallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "installd_uninstalls_total",
				Help: "Total number of uninstall operations",
			},
			[]string{"outcome"},
		),
		ExportedObjects: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "installd_exported_objects",
				Help: "Number of currently exported application objects",
			},
		),
		BusConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "installd_bus_connections",
				Help: "Number of connected bus observers",
			},
		),
		MethodCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "installd_method_calls_total",
				Help: "Total number of dispatched method calls",
			},
			[]string{"interface", "member"},
		),
		SignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "installd_signals_total",
				Help: "Total number of emitted signals",
			},
			[]string{"member"},
		),
	}
}

// Handler returns an HTTP handler exposing the metrics in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
