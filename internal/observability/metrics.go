package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycrane/skycrane/pkg/jobs"
)

// Metrics holds the orchestration counters exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	JobsCreated   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsCancelled prometheus.Counter

	DeploySteps  *prometheus.CounterVec
	JobsInFlight prometheus.Gauge
}

// NewMetrics builds and registers the metric set on its own registry, so
// tests can construct independent instances without duplicate-registration
// panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		JobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycrane_jobs_created_total",
			Help: "Jobs created, by job type.",
		}, []string{"job_type"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycrane_jobs_completed_total",
			Help: "Jobs that reached COMPLETED, by job type.",
		}, []string{"job_type"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycrane_jobs_failed_total",
			Help: "Jobs that reached FAILED, by job type.",
		}, []string{"job_type"}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skycrane_jobs_cancelled_total",
			Help: "Jobs cancelled while pending.",
		}),
		DeploySteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skycrane_deploy_steps_total",
			Help: "Application install attempts, by outcome.",
		}, []string{"status"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skycrane_jobs_in_flight",
			Help: "Jobs currently running.",
		}),
	}

	reg.MustRegister(
		m.JobsCreated,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsCancelled,
		m.DeploySteps,
		m.JobsInFlight,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentJob wraps an executor function so every run updates the
// in-flight gauge and the completed/failed counters, regardless of whether
// the run was dispatched by the background executor or inline by a CLI
// command. Wrapping happens once, at the composition root.
func (m *Metrics) InstrumentJob(jobType string, fn jobs.Func) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (result map[string]any, err error) {
		m.JobsInFlight.Inc()
		finished := false
		defer func() {
			m.JobsInFlight.Dec()
			// A panic unwinds past the assignment below; the manager
			// converts it into a failed job, so count it as one.
			if !finished {
				m.JobsFailed.WithLabelValues(jobType).Inc()
			}
		}()

		result, err = fn(ctx, job)
		finished = true
		if err != nil {
			m.JobsFailed.WithLabelValues(jobType).Inc()
		} else {
			m.JobsCompleted.WithLabelValues(jobType).Inc()
		}
		return result, err
	}
}

// InstrumentRegistry rewraps every registered job type with InstrumentJob.
func (m *Metrics) InstrumentRegistry(reg *jobs.Registry) {
	for _, jobType := range reg.Types() {
		fn, err := reg.Lookup(jobType)
		if err != nil {
			continue
		}
		reg.Register(jobType, m.InstrumentJob(jobType, fn))
	}
}
