package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/version"
)

// probeTimeout bounds each dependency probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// Pinger reports whether one dependency (the vector store, the LLM backend)
// is reachable. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses (e.g. "postgres").
	Name() string
}

// readyCheck is the result of one probe.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// healthResponse is the JSON body returned by GET /api/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth handles GET /api/health. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// handleReady handles GET /api/ready. Every Pinger is probed concurrently;
// the response is 200 only when all of them succeed, 503 otherwise. Checks
// are reported in registration order.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			checks[i] = probe(r.Context(), p)
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if c.OK {
			continue
		}
		resp.Ready = false
		log.Warn("readiness probe failed",
			slog.String("dependency", c.Name),
			slog.String("error", c.Error),
		)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

// probe runs one Pinger under probeTimeout.
func probe(ctx context.Context, p Pinger) readyCheck {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	check := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Error = err.Error()
	}
	return check
}
