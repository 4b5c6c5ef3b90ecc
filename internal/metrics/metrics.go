package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the scan pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RuleEvaluations   *prometheus.CounterVec
	SandboxViolations prometheus.Counter
	CommandTimeouts   prometheus.Counter
	ScansCompleted    *prometheus.CounterVec
	ComplianceScore   prometheus.Histogram
	JobsEnqueued      prometheus.Counter
	JobsSkipped       prometheus.Counter
	JobsFinished      *prometheus.CounterVec
	RuntimeExceeded   prometheus.Counter
	FailureAlerts     prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RuleEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_rule_evaluations_total",
			Help: "Rule evaluations by outcome",
		}, []string{"outcome"}),
		SandboxViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_sandbox_violations_total",
			Help: "Rules rejected by the sandbox policy",
		}),
		CommandTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_command_timeouts_total",
			Help: "Rule commands terminated on timeout",
		}),
		ScansCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_scans_completed_total",
			Help: "Completed scans by report status",
		}, []string{"status"}),
		ComplianceScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_scan_compliance_score",
			Help:    "Compliance score of completed scans",
			Buckets: []float64{10, 25, 50, 60, 70, 80, 90, 95, 100},
		}),
		JobsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_jobs_enqueued_total",
			Help: "Scan jobs created by the scheduler",
		}),
		JobsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_jobs_skipped_capacity_total",
			Help: "Due schedules skipped because their group was at capacity",
		}),
		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_jobs_finished_total",
			Help: "Scan jobs finished by terminal status",
		}, []string{"status"}),
		RuntimeExceeded: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_job_runtime_exceeded_total",
			Help: "Jobs failed for exceeding the runtime ceiling",
		}),
		FailureAlerts: f.NewCounter(prometheus.CounterOpts{
			Name: "pulse_repeated_failure_alerts_total",
			Help: "Alerts raised for consecutive job failures of one group",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "Ops HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "Ops HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObserveEvaluation(passed, sandboxViolation, timedOut bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	m.RuleEvaluations.WithLabelValues(outcome).Inc()
	if sandboxViolation {
		m.SandboxViolations.Inc()
	}
	if timedOut {
		m.CommandTimeouts.Inc()
	}
}

func (m *Metrics) ObserveScan(status string, score float64) {
	if m == nil {
		return
	}
	m.ScansCompleted.WithLabelValues(status).Inc()
	m.ComplianceScore.Observe(score)
}

func (m *Metrics) IncJobsEnqueued() {
	if m != nil {
		m.JobsEnqueued.Inc()
	}
}

func (m *Metrics) IncJobsSkipped() {
	if m != nil {
		m.JobsSkipped.Inc()
	}
}

func (m *Metrics) ObserveJob(status string) {
	if m != nil {
		m.JobsFinished.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncRuntimeExceeded() {
	if m != nil {
		m.RuntimeExceeded.Inc()
	}
}

func (m *Metrics) IncFailureAlerts() {
	if m != nil {
		m.FailureAlerts.Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
