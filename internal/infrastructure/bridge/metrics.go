package bridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the bridge's `/metrics` counter set: invocation volume,
// active invocations, gate contention, and dedup hits. It is the only
// Prometheus instrumentation in the module; the orchestrator's loop
// steps and leases are not instrumented. The teacher's own
// internal/infrastructure/monitoring hand-rolls a
// Prometheus text exporter specifically to avoid this dependency, but
// since client_golang already sits in go.mod unused by anything, the
// bridge is where it finally gets exercised.
type Metrics struct {
	InvocationsTotal  *prometheus.CounterVec
	ActiveInvocations prometheus.Gauge
	DedupHitsTotal    prometheus.Counter
	GateRejectedTotal prometheus.Counter
}

// NewMetrics registers the bridge's metrics against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brainloop_bridge_invocations_total",
			Help: "Total invoke requests handled by the executor bridge, labeled by outcome.",
		}, []string{"tool", "outcome"}),
		ActiveInvocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brainloop_bridge_active_invocations",
			Help: "In-flight invocations currently holding a concurrency gate slot.",
		}),
		DedupHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brainloop_bridge_dedup_hits_total",
			Help: "Invocations served from the dedup cache instead of re-executing.",
		}),
		GateRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brainloop_bridge_gate_rejected_total",
			Help: "Invocations rejected with E_BUSY by the concurrency gate.",
		}),
	}
	registry.MustRegister(m.InvocationsTotal, m.ActiveInvocations, m.DedupHitsTotal, m.GateRejectedTotal)
	return m
}
