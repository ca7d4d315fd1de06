// Package metrics holds the Prometheus collectors for the periodic check and
// the generation dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/planmate/internal/constants"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	checks        prometheus.Counter
	checkDuration prometheus.Histogram
	plansActive   prometheus.Gauge
	dispatches    *prometheus.CounterVec
	genErrors     *prometheus.CounterVec
	genDuration   prometheus.Histogram
	notifications *prometheus.CounterVec
	jobsScheduled prometheus.Gauge
	jobRuns       *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	ns := constants.AppName
	m := &Metrics{
		registry: reg,
		checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "periodic_checks_total",
			Help: "Completed periodic plan checks.",
		}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "periodic_check_duration_seconds",
			Help:    "Wall time of one periodic plan check.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		plansActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "plans_active",
			Help: "Plans inside their window and not completed at the last check.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "dispatches_total",
			Help: "Generated messages by result.",
		}, []string{"result"}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "generation_errors_total",
			Help: "Generation failures by category.",
		}, []string{"category"}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "generation_duration_seconds",
			Help:    "Latency of chat-completion calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "notifications_total",
			Help: "Notification attempts by result.",
		}, []string{"result"}),
		jobsScheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "scheduler_jobs",
			Help: "Jobs currently held by the scheduler queue.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "scheduler_job_runs_total",
			Help: "Scheduler job executions by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.checks, m.checkDuration, m.plansActive, m.dispatches, m.genErrors,
		m.genDuration, m.notifications, m.jobsScheduled, m.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCheck(d time.Duration, active int) {
	if m == nil {
		return
	}
	m.checks.Inc()
	m.checkDuration.Observe(d.Seconds())
	m.plansActive.Set(float64(active))
}

// ObserveDispatch records one dispatch. category is empty on success.
func (m *Metrics) ObserveDispatch(d time.Duration, category string) {
	if m == nil {
		return
	}
	m.genDuration.Observe(d.Seconds())
	if category == "" {
		m.dispatches.WithLabelValues("ok").Inc()
		return
	}
	m.dispatches.WithLabelValues("error").Inc()
	m.genErrors.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveNotification(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifications.WithLabelValues("error").Inc()
		return
	}
	m.notifications.WithLabelValues("sent").Inc()
}

func (m *Metrics) SetJobs(n int) {
	if m == nil {
		return
	}
	m.jobsScheduled.Set(float64(n))
}

// ObserveJobRun counts a job execution; kind is "periodic" or "once".
func (m *Metrics) ObserveJobRun(kind string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(kind).Inc()
}
