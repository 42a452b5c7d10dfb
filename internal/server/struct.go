package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/sitrep-go/internal/history"
	"github.com/54b3r/sitrep-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds one pipeline run (default: 2m).
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /api/query (requests/second). Defaults to 2 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 5 if zero.
	RateBurst int
	// History receives every finished run and backs GET /api/history.
	// Nil disables both.
	History history.Log
	// MetricsRegistry is where server metrics are registered. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Runner answers one question. *pipeline.Pipeline satisfies it; tests inject
// a fake.
type Runner interface {
	Run(ctx context.Context, query string) *pipeline.Result
}

// Server is the HTTP server that exposes the pipeline.
type Server struct {
	// runner answers POST /api/query.
	runner Runner
	// history logs finished runs; may be nil.
	history history.Log
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the analyst's natural language question.
	Query string `json:"query"`
}

// errorResponse is the JSON body of every non-2xx API reply.
type errorResponse struct {
	Error string `json:"error"`
}
