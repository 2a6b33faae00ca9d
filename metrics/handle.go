// Package metrics provides the optional observability handle exposed
// through RunContext (spec.md §6: "a metrics-endpoint descriptor ... the
// core neither deploys nor requires a metrics backend") and the Prometheus
// gauge set the block feed updates when one is attached, grounded on the
// teacher's core/system_health_logging.go HealthLogger gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handle describes a PromQL-compatible metrics endpoint a custom
// expectation may query, plus the registry chainharness's own components
// publish into when wired.
type Handle struct {
	// BaseURL is the external metrics endpoint (e.g. a Prometheus server)
	// a deployer may expose. May be empty if the deployer provides none.
	BaseURL string

	registry *prometheus.Registry

	BlocksObserved   prometheus.Gauge
	TotalTxs         prometheus.Gauge
	TotalDABlobs     prometheus.Gauge
	RestartsTotal    prometheus.Counter
	ExpectationFails prometheus.Counter
}

// New builds a Handle with its own Prometheus registry and gauge set.
// baseURL is passed through unchanged for consumers that want to query an
// external Prometheus server directly; it is independent of the registry
// Handler serves.
func New(baseURL string) *Handle {
	reg := prometheus.NewRegistry()
	h := &Handle{
		BaseURL:  baseURL,
		registry: reg,
		BlocksObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainharness_blocks_observed",
			Help: "Number of blocks observed by the block feed.",
		}),
		TotalTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainharness_total_transactions",
			Help: "Total transactions observed across all blocks.",
		}),
		TotalDABlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainharness_total_da_blobs",
			Help: "Total DA blobs observed across all blocks.",
		}),
		RestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainharness_node_restarts_total",
			Help: "Number of node restarts triggered by the chaos workload.",
		}),
		ExpectationFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainharness_expectation_failures_total",
			Help: "Number of expectations that reported failure at evaluation.",
		}),
	}
	reg.MustRegister(h.BlocksObserved, h.TotalTxs, h.TotalDABlobs, h.RestartsTotal, h.ExpectationFails)
	return h
}

// Handler returns an http.Handler exposing this Handle's registry in the
// Prometheus exposition format, suitable for mounting under /metrics on a
// reference server.
func (h *Handle) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}
