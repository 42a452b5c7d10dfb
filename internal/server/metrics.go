package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryActive is the number of POST /api/query runs currently in flight.
	queryActive prometheus.Gauge

	// historyErrorsTotal counts runs that could not be written to the
	// history log.
	historyErrorsTotal prometheus.Counter

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, which keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitrep",
			Subsystem: "query",
			Name:      "active",
			Help:      "Number of POST /api/query runs currently in flight.",
		}),

		historyErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitrep",
			Subsystem: "history",
			Name:      "errors_total",
			Help:      "Finished runs that could not be written to the history log.",
		}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitrep",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitrep",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitrep",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps h so every request is counted and timed under name.
func (m *serverMetrics) instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rw, r)
		m.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
