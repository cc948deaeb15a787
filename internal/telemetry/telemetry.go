package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Candidates      prometheus.Gauge
	Qualified       prometheus.Gauge
	ExcludedTotal   *prometheus.CounterVec
	RejectedTotal   *prometheus.CounterVec
	WriteFailures   *prometheus.CounterVec
	StrategyErrors  *prometheus.CounterVec
	SnapshotsPurged prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_runs_total",
				Help: "Pipeline runs, by final status.",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotlist_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),
		Candidates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotlist_candidates",
				Help: "Candidates collected by the last run.",
			},
		),
		Qualified: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hotlist_qualified",
				Help: "Hot-list items produced by the last run.",
			},
		),
		ExcludedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_excluded_total",
				Help: "Videos dropped by the collector, by structural reason.",
			},
			[]string{"reason"},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_rejected_total",
				Help: "Scored candidates that failed the list filter, by reason.",
			},
			[]string{"reason"},
		),
		WriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_write_failures_total",
				Help: "Rows that could not be persisted, by entity.",
			},
			[]string{"entity"},
		),
		StrategyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotlist_strategy_errors_total",
				Help: "Discovery strategy failures, by strategy.",
			},
			[]string{"strategy"},
		),
		SnapshotsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hotlist_snapshots_purged_total",
				Help: "Snapshots deleted by the retention pass.",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hotlist_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.RunDuration,
		m.Candidates,
		m.Qualified,
		m.ExcludedTotal,
		m.RejectedTotal,
		m.WriteFailures,
		m.StrategyErrors,
		m.SnapshotsPurged,
		m.RequestDuration,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunResult is what a finished run reports.
type RunResult struct {
	Status        string
	Duration      time.Duration
	Candidates    int
	Qualified     int
	Excluded      map[string]int
	Rejected      map[string]int
	WriteFailures map[string]int
	StrategyFails []string
}

// ObserveRun records one pipeline run.
func (m *Metrics) ObserveRun(r RunResult) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(r.Status).Inc()
	m.RunDuration.Observe(r.Duration.Seconds())
	m.Candidates.Set(float64(r.Candidates))
	m.Qualified.Set(float64(r.Qualified))
	for reason, n := range r.Excluded {
		m.ExcludedTotal.WithLabelValues(reason).Add(float64(n))
	}
	for reason, n := range r.Rejected {
		m.RejectedTotal.WithLabelValues(reason).Add(float64(n))
	}
	for entity, n := range r.WriteFailures {
		m.WriteFailures.WithLabelValues(entity).Add(float64(n))
	}
	for _, name := range r.StrategyFails {
		m.StrategyErrors.WithLabelValues(name).Inc()
	}
}

// ObservePurge records a retention pass.
func (m *Metrics) ObservePurge(n int64) {
	if m == nil {
		return
	}
	m.SnapshotsPurged.Add(float64(n))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
