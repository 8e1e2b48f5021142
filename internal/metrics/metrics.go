// Package metrics defines the application's Prometheus collectors and the
// HTTP instrumentation middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmitted counts generation tasks accepted for dispatch.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathlight_tasks_submitted_total",
		Help: "Number of generation tasks submitted for background processing.",
	})

	// TasksFinished counts tasks by the terminal status they reached.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pathlight_tasks_finished_total",
		Help: "Number of tasks that reached a terminal status, by status.",
	}, []string{"status"})

	// TaskDuration observes wall-clock execution time of task workflows.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pathlight_task_duration_seconds",
		Help:    "Execution duration of background task workflows.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// CascadeUpdates counts completion-toggle events processed by the
	// progress cascade engine.
	CascadeUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pathlight_cascade_updates_total",
		Help: "Number of completion events processed by the progress cascade.",
	})

	// HTTPRequestDuration observes request latency by method, route pattern
	// and status code.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pathlight_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware instruments every request with the HTTPRequestDuration
// histogram, labelling by the chi route pattern rather than the raw path so
// label cardinality stays bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		HTTPRequestDuration.WithLabelValues(
			r.Method,
			routePattern(r),
			strconv.Itoa(ww.Status()),
		).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the matched chi route pattern, falling back to the
// raw path when no route context is present.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
