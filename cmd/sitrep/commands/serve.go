package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/server"
)

// NewServeCmd constructs the `sitrep serve` command, which starts the HTTP
// server exposing POST /api/query.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var queryTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sitrep HTTP server",
		Long: `Start the sitrep HTTP server.

POST /api/query accepts {"query": "..."} and returns the answer, the
retrieved reports and the interpreted intent. Health, readiness, history
and Prometheus metrics are served alongside it.

Examples:
  sitrep serve
  sitrep serve --port 5000
  STORE_BACKEND=qdrant sitrep serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := setupTracing(log)
			defer flush()

			a, err := buildApp(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			hist, closeHistory := openHistory(log)
			defer closeHistory()

			srv, err := server.New(a.pipeline, &server.Config{
				Host:         envOr("SITREP_HOST", host),
				Port:         envInt("SITREP_PORT", port),
				QueryTimeout: queryTimeout,
				Logger:       log,
				Pingers:      buildPingers(a),
				RateLimit:    envFloat("SITREP_RATE_LIMIT", 0),
				RateBurst:    envInt("SITREP_RATE_BURST", 0),
				History:      hist,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.String("table", a.retriever.Table()), slog.Int("top_k", a.retriever.TopK()))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().DurationVar(&queryTimeout, "query-timeout", 0, "Upper bound for one query (default 2m)")

	return cmd
}
