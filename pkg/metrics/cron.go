package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics covers the settlement cron: per-job outcome, duration, the
// last good run and how often the lease slipped away mid-cycle.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	outcome     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	leaseLost   prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chama_cron_job_duration_seconds",
			Help:    "Duration of cron jobs in seconds.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		outcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chama_cron_job_runs_total",
			Help: "Cron job executions by outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chama_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		leaseLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chama_cron_lease_lost_total",
			Help: "Cycles abandoned because the cron lease expired or was taken.",
		}),
	}
	reg.MustRegister(m.duration, m.outcome, m.lastSuccess, m.leaseLost)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) { c.incOutcome(job, "success") }

func (c *CronJobMetrics) IncFailure(job string) { c.incOutcome(job, "failure") }

func (c *CronJobMetrics) incOutcome(job, outcome string) {
	if c == nil || c.outcome == nil {
		return
	}
	c.outcome.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// SetLastSuccess stamps the completion time of a successful run.
func (c *CronJobMetrics) SetLastSuccess(job string, at time.Time) {
	if c == nil || c.lastSuccess == nil {
		return
	}
	c.lastSuccess.WithLabelValues(normalizeLabel(job)).Set(float64(at.Unix()))
}

func (c *CronJobMetrics) IncLeaseLost() {
	if c == nil || c.leaseLost == nil {
		return
	}
	c.leaseLost.Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
