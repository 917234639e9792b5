// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by the logical endpoint name rather
// than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// ragRequestsTotal counts completed query-pipeline runs, partitioned by
	// output mode and outcome ("ok" or "error").
	ragRequestsTotal *prometheus.CounterVec

	// ragDurationSeconds records the wall-clock duration of each pipeline run
	// from request receipt to response, partitioned by output mode.
	ragDurationSeconds *prometheus.HistogramVec

	// indexRefreshTotal counts forced index rebuilds, partitioned by the
	// refresh result status ("success" or "error").
	indexRefreshTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		ragRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantryai",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total number of query-pipeline runs completed, partitioned by output mode and outcome.",
		}, []string{"mode", "outcome"}),

		ragDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pantryai",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of query-pipeline runs, partitioned by output mode.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),

		indexRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantryai",
			Subsystem: "index",
			Name:      "refresh_total",
			Help:      "Total number of forced index rebuilds, partitioned by result status.",
		}, []string{"status"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantryai",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pantryai",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps a handler so every request is counted and timed under the
// given logical handler name.
func (s *Server) instrument(name string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
