// Package server implements the HTTP API that answers analyst questions over
// the sitrep table. The server is started by the `sitrep serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/pipeline"
)

const (
	// defaultHistoryLimit is the number of runs GET /api/history returns
	// without a limit parameter.
	defaultHistoryLimit = 20
	// maxHistoryLimit caps the limit parameter.
	maxHistoryLimit = 200
	// maxQueryBody caps the POST /api/query body.
	maxQueryBody = 64 << 10
)

// New constructs a Server from the provided runner and config.
func New(runner Runner, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server: runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.QueryTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		runner:  runner,
		history: cfg.History,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.metrics.rateLimitedTotal)
	s.stopRL = stop

	m := s.metrics
	mux := http.NewServeMux()
	mux.Handle("POST /api/query", m.instrument("query", rl.middleware(http.HandlerFunc(s.handleQuery))))
	mux.Handle("GET /api/history", m.instrument("history", http.HandlerFunc(s.handleHistory)))
	mux.Handle("GET /api/health", m.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", m.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wired HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("sitrep server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. An empty query is rejected with 400
// and an unavailable table with 404; every other run answers 200, including
// runs that found no records.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "No query provided"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queryActive.Inc()
	res := s.runner.Run(ctx, query)
	s.metrics.queryActive.Dec()

	s.record(ctx, res)

	if res.Outcome == pipeline.OutcomeNotFound {
		writeJSON(w, log, http.StatusNotFound, errorResponse{Error: "No results found"})
		return
	}
	writeJSON(w, log, http.StatusOK, res)
}

// record appends res to the history log. Failures are logged and counted.
func (s *Server) record(ctx context.Context, res *pipeline.Result) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), res); err != nil {
		s.metrics.historyErrorsTotal.Inc()
		logging.FromContext(ctx).Warn("history record failed", slog.Any("error", err))
	}
}

// handleHistory handles GET /api/history?limit=n.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.history == nil {
		writeJSON(w, log, http.StatusServiceUnavailable, errorResponse{Error: "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		log.Error("history read failed", slog.Any("error", err))
		writeJSON(w, log, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	writeJSON(w, log, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
