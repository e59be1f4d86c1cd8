package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts reconciliation and background task outcomes.
type SettlementMetrics struct {
	reconciled *prometheus.CounterVec
	tasks      *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement counters on reg. A nil registerer
// yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chama_reconcile_outcomes_total",
		Help: "Gateway results reconciled, by transfer kind and outcome.",
	}, []string{"kind", "outcome"})
	tasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chama_task_outcomes_total",
		Help: "Background task executions, by task kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(reconciled, tasks)
	return &SettlementMetrics{reconciled: reconciled, tasks: tasks}
}

// IncReconciled records one reconcile or finalize call.
func (m *SettlementMetrics) IncReconciled(kind, outcome string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncTask records one task execution: succeeded, retried or failed.
func (m *SettlementMetrics) IncTask(kind, outcome string) {
	if m == nil || m.tasks == nil {
		return
	}
	m.tasks.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
