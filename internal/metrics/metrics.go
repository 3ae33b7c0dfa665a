// Package metrics exposes Prometheus collectors for runs, outcomes,
// publishing and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoposter_runs_total",
			Help: "Dispatch runs by result (ok, error)",
		},
		[]string{"result"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autoposter_run_duration_seconds",
			Help:    "Wall time of a dispatch run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoposter_outcomes_total",
			Help: "Per-unit dispatch outcomes by kind and status",
		},
		[]string{"kind", "status"},
	)

	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoposter_publish_requests_total",
			Help: "Publish attempts by platform and result",
		},
		[]string{"platform", "result"},
	)

	// 0=closed, 1=half-open, 2=open
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoposter_publish_breaker_state",
			Help: "Circuit breaker state per platform (0=closed, 1=half-open, 2=open)",
		},
		[]string{"platform"},
	)

	reapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoposter_stale_claims_reaped_total",
			Help: "Claims failed because their run never finished them",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveRun records one finished dispatch run.
func ObserveRun(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
}

// ObserveOutcome records one per-unit outcome.
func ObserveOutcome(kind, status string) {
	outcomesTotal.WithLabelValues(kind, status).Inc()
}

// ObservePublish records one publish attempt.
func ObservePublish(platform string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	publishTotal.WithLabelValues(platform, result).Inc()
}

// SetBreakerState records the breaker state of a platform.
func SetBreakerState(platform string, state int) {
	breakerState.WithLabelValues(platform).Set(float64(state))
}

// AddReaped counts stale claims that were failed.
func AddReaped(n int64) {
	if n > 0 {
		reapedTotal.Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps h with request counters labeled by the fixed route name.
func Instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
