package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CertificatesTotal counts the certificate items seen in the most recent
	// processing pass, by key type and decision outcome (issue, renew,
	// rotate, noop). Orchestrator.Run resets it at the start of each pass.
	CertificatesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "certmgr_certificates_total",
			Help: "Total number of certificate items by key type and last decision",
		},
		[]string{"key_type", "decision"},
	)

	// RenewalsTotal counts completed issue/renew/rotate operations by
	// outcome (success, fatal_error).
	RenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmgr_renewals_total",
			Help: "Total number of certificate issue/renew/rotate operations by outcome",
		},
		[]string{"name", "key_type", "outcome"},
	)

	// ValidationErrorsTotal counts non-fatal verifier mismatches (spec.md
	// §7: ValidationError is logged and counted, never fatal).
	ValidationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmgr_validation_errors_total",
			Help: "Total number of non-fatal verification validation errors",
		},
		[]string{"name", "host"},
	)

	// FatalErrorsTotal counts contexts that aborted processing with a
	// fatal error kind (everything except ValidationError).
	FatalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmgr_fatal_errors_total",
			Help: "Total number of contexts that aborted with a fatal error, by kind",
		},
		[]string{"name", "kind"},
	)

	// AcmeOrderDuration times a full Obtain call: order creation, challenge
	// answer, polling, and finalize.
	AcmeOrderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "certmgr_acme_order_duration_seconds",
			Help:    "Time taken to complete an ACME order, from creation to issued chain",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// ContextProcessDuration times one full pass over a single
	// CertificateContext (decide, obtain, commit, hooks, verify).
	ContextProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certmgr_context_process_duration_seconds",
			Help:    "Time taken to process one certificate context",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"name"},
	)

	// VerifyDuration times one VerifyTarget dial-and-check pass.
	VerifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "certmgr_verify_duration_seconds",
			Help:    "Time taken to verify one deployed certificate target",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RunDuration times an entire run across all configured contexts.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "certmgr_run_duration_seconds",
			Help:    "Time taken for a full run across all configured certificate contexts",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800},
		},
	)

	RunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certmgr_runs_total",
			Help: "Total number of completed runs",
		},
	)
)

func init() {
	prometheus.MustRegister(CertificatesTotal)
	prometheus.MustRegister(RenewalsTotal)
	prometheus.MustRegister(ValidationErrorsTotal)
	prometheus.MustRegister(FatalErrorsTotal)
	prometheus.MustRegister(AcmeOrderDuration)
	prometheus.MustRegister(ContextProcessDuration)
	prometheus.MustRegister(VerifyDuration)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(RunsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
