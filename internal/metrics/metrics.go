// Package metrics exposes deployment counters on a private prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the palmdeploy collectors.
type Metrics struct {
	registry *prometheus.Registry

	deployments    *prometheus.CounterVec
	gasUsed        *prometheus.CounterVec
	scriptDuration *prometheus.HistogramVec
	scriptFailures *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. withRuntime adds the Go
// and process collectors, which only make sense for the long-running server.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palmdeploy_deployments_total",
			Help: "Deploy calls by outcome (deployed, reused, failed).",
		}, []string{"network", "contract", "result"}),
		gasUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palmdeploy_deploy_gas_used",
			Help: "Gas used by deployment transactions.",
		}, []string{"network", "contract"}),
		scriptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "palmdeploy_script_duration_seconds",
			Help:    "Wall time of each deploy script.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"script"}),
		scriptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palmdeploy_script_failures_total",
			Help: "Deploy scripts that returned an error.",
		}, []string{"script"}),
	}

	m.registry.MustRegister(m.deployments, m.gasUsed, m.scriptDuration, m.scriptFailures)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// ObserveDeployment records one deploy call.
func (m *Metrics) ObserveDeployment(network, contract, result string, gasUsed uint64) {
	m.deployments.WithLabelValues(network, contract, result).Inc()
	if gasUsed > 0 {
		m.gasUsed.WithLabelValues(network, contract).Add(float64(gasUsed))
	}
}

// ObserveScript records one script run.
func (m *Metrics) ObserveScript(id string, took time.Duration, err error) {
	m.scriptDuration.WithLabelValues(id).Observe(took.Seconds())
	if err != nil {
		m.scriptFailures.WithLabelValues(id).Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
