package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the formgraph engine.
type Metrics struct {
	config MetricsConfig

	// Evaluation metrics
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	evaluationPasses   prometheus.Histogram
	changedKeys        prometheus.Histogram

	// Effect metrics
	effectRunsTotal *prometheus.CounterVec

	// Branch metrics
	remountsTotal *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeSessions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Evaluation metrics
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of graph evaluations",
			},
			[]string{"operation", "status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of graph evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		evaluationPasses: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_passes",
				Help:      "Effect passes needed for an evaluation to settle",
				Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 20},
			},
		),
		changedKeys: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_changed_keys",
				Help:      "Number of keys changed by a settled evaluation",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		// Effect metrics
		effectRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effect_runs_total",
				Help:      "Total number of effect executions",
			},
			[]string{"effect"},
		),

		// Branch metrics
		remountsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "branch_remounts_total",
				Help:      "Total number of discriminator variant remounts",
			},
			[]string{"discriminant"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of evaluation errors by error class",
			},
			[]string{"class"},
		),

		// System metrics
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of open form sessions",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.evaluationPasses,
		m.changedKeys,
		m.effectRunsTotal,
		m.remountsTotal,
		m.errorsByClass,
		m.activeSessions,
	)

	return m, nil
}

// RecordEvaluation records a settled or failed evaluation.
func (m *Metrics) RecordEvaluation(operation, status string, duration time.Duration) {
	if m.evaluationsTotal == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(operation, status).Inc()
	m.evaluationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSettlement records the pass count and changed-key count of a
// settled evaluation.
func (m *Metrics) RecordSettlement(passes, changed int) {
	if m.evaluationPasses == nil {
		return
	}
	m.evaluationPasses.Observe(float64(passes))
	m.changedKeys.Observe(float64(changed))
}

// RecordEffectRun records one effect execution.
func (m *Metrics) RecordEffectRun(effect string) {
	if m.effectRunsTotal == nil {
		return
	}
	m.effectRunsTotal.WithLabelValues(effect).Inc()
}

// RecordRemount records a discriminator variant swap.
func (m *Metrics) RecordRemount(discriminant string) {
	if m.remountsTotal == nil {
		return
	}
	m.remountsTotal.WithLabelValues(discriminant).Inc()
}

// RecordError records an evaluation error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Dec()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
