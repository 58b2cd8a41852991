// Package metrics exposes Prometheus instrumentation for the circuit solver.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all solver metrics.
type Registry struct {
	RecomputesTotal     prometheus.Counter
	RecomputeDuration   prometheus.Histogram
	SolverRounds        prometheus.Histogram
	NonConvergenceTotal prometheus.Counter
	DeviceFlipsTotal    *prometheus.CounterVec
	FaultedNodes        *prometheus.GaugeVec
	EnergizedDevices    prometheus.Gauge
	GraphLinks          prometheus.Gauge
	GraphNodes          prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		RecomputesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relaysim_recomputes_total",
			Help: "Total number of full circuit recomputations",
		}),
		RecomputeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaysim_recompute_duration_seconds",
			Help:    "Duration of a full circuit recomputation in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		SolverRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaysim_solver_rounds",
			Help:    "Resolution rounds needed to reach a fixed point",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24},
		}),
		NonConvergenceTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "relaysim_solver_nonconvergence_total",
			Help: "Recomputations that stopped at the iteration cap with coils still changing",
		}),
		DeviceFlipsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relaysim_device_flips_total",
			Help: "Coil state changes observed by the solver",
		}, []string{"state"}), // energized, deenergized
		FaultedNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaysim_faulted_nodes",
			Help: "Nodes currently in a fault condition",
		}, []string{"class"}), // short_to_neutral, inter_phase
		EnergizedDevices: f.NewGauge(prometheus.GaugeOpts{
			Name: "relaysim_energized_devices",
			Help: "Controllable devices currently energized",
		}),
		GraphLinks: f.NewGauge(prometheus.GaugeOpts{
			Name: "relaysim_graph_links",
			Help: "Directed links in the circuit graph",
		}),
		GraphNodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "relaysim_graph_nodes",
			Help: "Known nodes in the circuit graph",
		}),
		registry: reg,
	}
}

// Recompute describes one finished recomputation.
type Recompute struct {
	Duration        time.Duration
	Rounds          int
	Converged       bool
	Energized       int
	FlipsOn         int
	FlipsOff        int
	ShortedNodes    int
	InterPhaseNodes int
	Links           int
	Nodes           int
}

// RecordRecompute updates every metric from one recomputation. Safe to call
// on a nil receiver.
func (r *Registry) RecordRecompute(rc Recompute) {
	if r == nil {
		return
	}
	r.RecomputesTotal.Inc()
	r.RecomputeDuration.Observe(rc.Duration.Seconds())
	r.SolverRounds.Observe(float64(rc.Rounds))
	if !rc.Converged {
		r.NonConvergenceTotal.Inc()
	}
	r.DeviceFlipsTotal.WithLabelValues("energized").Add(float64(rc.FlipsOn))
	r.DeviceFlipsTotal.WithLabelValues("deenergized").Add(float64(rc.FlipsOff))
	r.FaultedNodes.WithLabelValues("short_to_neutral").Set(float64(rc.ShortedNodes))
	r.FaultedNodes.WithLabelValues("inter_phase").Set(float64(rc.InterPhaseNodes))
	r.EnergizedDevices.Set(float64(rc.Energized))
	r.GraphLinks.Set(float64(rc.Links))
	r.GraphNodes.Set(float64(rc.Nodes))
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
