package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks how settlement events leave the outbox and how long
// they waited before they did.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	lag    prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chama_outbox_events_total",
			Help: "Outbox events handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chama_outbox_publish_lag_seconds",
			Help:    "Time between an event being written and being published.",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 120, 600},
		}),
	}
	reg.MustRegister(m.events, m.lag)
	return m
}

func (o *OutboxMetrics) Inc(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveLag records the wait of a published event. Negative lags from clock
// skew are clamped to zero.
func (o *OutboxMetrics) ObserveLag(lag time.Duration) {
	if o == nil || o.lag == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	o.lag.Observe(lag.Seconds())
}
