// Package jobmetrics instruments asynq handlers with Prometheus collectors.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer. A nil registerer
// shares one set of collectors on the Prometheus default registry, so the
// worker can call it from several places.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbook_jobs_failures_total",
			Help: "Failed job executions by task type.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slotbook_job_duration_seconds",
			Help:    "Job execution time by task type.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "slotbook_jobs_in_flight",
			Help: "Jobs currently executing by task type.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.inFlight)
	return m
}

// Tracker measures one job execution.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	once    sync.Once
}

// Track starts measuring a run of job. Every Track must be paired with End.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job, start: time.Now()}
	if m != nil && job != "" {
		m.inFlight.WithLabelValues(job).Inc()
	}
	return t
}

// End records the outcome of the run and returns err unchanged so handlers
// can write `return tracker.End(err)`. Only the first call counts.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	t.once.Do(func() {
		m := t.metrics
		m.inFlight.WithLabelValues(t.job).Dec()
		status := statusSuccess
		if err != nil {
			status = statusFailure
			m.failures.WithLabelValues(t.job).Inc()
		}
		m.runs.WithLabelValues(t.job, status).Inc()
		m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	})
	return err
}
