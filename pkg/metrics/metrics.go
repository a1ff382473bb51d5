// Package metrics exposes Prometheus metrics for long-running sweeps
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SweepMetrics tracks solver invocations and sweep progress
type SweepMetrics struct {
	registry *prometheus.Registry

	pointsCompleted prometheus.Counter
	pointsFailed    prometheus.Counter
	solverRetries   prometheus.Counter
	solverDuration  prometheus.Histogram
	sweepProgress   prometheus.Gauge
	torqueGauge     *prometheus.GaugeVec
}

// NewSweepMetrics creates a metrics set on its own registry so parallel
// sweeps (and tests) do not fight over the default one
func NewSweepMetrics() *SweepMetrics {
	m := &SweepMetrics{
		registry: prometheus.NewRegistry(),
		pointsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "machmap_points_completed_total",
			Help: "Operating points solved successfully",
		}),
		pointsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "machmap_points_failed_total",
			Help: "Operating points that failed after retries",
		}),
		solverRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "machmap_solver_retries_total",
			Help: "Solver invocations that needed a retry",
		}),
		solverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "machmap_solver_duration_seconds",
			Help:    "Wall time of one solver invocation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		sweepProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "machmap_sweep_progress_ratio",
			Help: "Completed fraction of the running sweep (0-1)",
		}),
		torqueGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "machmap_last_torque_nm",
			Help: "Torque of the most recent solved point per current row",
		}, []string{"current"}),
	}

	m.registry.MustRegister(
		m.pointsCompleted,
		m.pointsFailed,
		m.solverRetries,
		m.solverDuration,
		m.sweepProgress,
		m.torqueGauge,
	)

	return m
}

// PointCompleted records a solved point
func (m *SweepMetrics) PointCompleted(current string, torque, elapsedSeconds float64) {
	m.pointsCompleted.Inc()
	m.solverDuration.Observe(elapsedSeconds)
	m.torqueGauge.WithLabelValues(current).Set(torque)
}

// PointFailed records a point that failed after retries
func (m *SweepMetrics) PointFailed() {
	m.pointsFailed.Inc()
}

// RetryObserved records a solver retry
func (m *SweepMetrics) RetryObserved() {
	m.solverRetries.Inc()
}

// SetProgress updates the sweep progress gauge
func (m *SweepMetrics) SetProgress(completed, total int) {
	if total <= 0 {
		return
	}
	m.sweepProgress.Set(float64(completed) / float64(total))
}

// Handler returns the /metrics HTTP handler
func (m *SweepMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. The caller owns
// shutdown of the returned server.
func (m *SweepMetrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		// Best effort: a sweep does not stop because the metrics port
		// is taken.
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()
	return srv
}
