package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for transition metrics.
const (
	OutcomeChanged  = "changed"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds Prometheus collectors for the module registry.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	ModulesEnabled     prometheus.Gauge
	GateRejections     *prometheus.CounterVec
	Reloads            *prometheus.CounterVec
}

// New registers the collectors on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh
// registry so constructing several services does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "complyhub_module_transitions_total",
			Help: "Enable and disable requests by module, action and outcome",
		}, []string{"module", "action", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "complyhub_module_transition_duration_seconds",
			Help:    "Time spent validating and committing a module transition",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"action"}),
		ModulesEnabled: f.NewGauge(prometheus.GaugeOpts{
			Name: "complyhub_modules_enabled",
			Help: "Number of modules currently enabled",
		}),
		GateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "complyhub_module_gate_rejections_total",
			Help: "Requests rejected because the gated module is disabled",
		}, []string{"module"}),
		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "complyhub_module_reloads_total",
			Help: "Snapshot reloads from the state store by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveTransition records one Enable or Disable call.
func (m *Metrics) ObserveTransition(module, action, outcome string, seconds float64) {
	m.Transitions.WithLabelValues(module, action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(seconds)
}

// SetEnabled publishes the number of enabled modules.
func (m *Metrics) SetEnabled(n int) {
	m.ModulesEnabled.Set(float64(n))
}

// IncGateRejection counts a request refused by the module gate.
func (m *Metrics) IncGateRejection(module string) {
	m.GateRejections.WithLabelValues(module).Inc()
}

// IncReload counts a snapshot reload.
func (m *Metrics) IncReload(outcome string) {
	m.Reloads.WithLabelValues(outcome).Inc()
}
