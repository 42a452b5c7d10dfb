package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/sitrep-go/internal/embedder"
	"github.com/54b3r/sitrep-go/internal/ingestion"
	"github.com/54b3r/sitrep-go/internal/logging"
)

// NewBackfillCmd constructs the `sitrep backfill` command, which writes
// embeddings for rows of the sitrep table that have none.
func NewBackfillCmd() *cobra.Command {
	var columns []string
	var keyColumn string
	var batchSize int
	var maxRows int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed sitrep rows whose embedding column is NULL",
		Long: `Embed sitrep rows whose embedding column is NULL.

The listed text columns of each pending row are rendered as "column: value"
lines, embedded with the configured embedding backend and written back to
the embedding column. Only the postgres store is supported.

Examples:
  sitrep backfill --columns title,description
  sitrep backfill --columns description --batch 32 --max-rows 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if backend := envOr("STORE_BACKEND", "postgres"); backend != "postgres" {
				return fmt.Errorf("backfill: STORE_BACKEND %q is not supported, use postgres", backend)
			}

			embCfg := embedder.ConfigFromEnv()
			if err := embedder.Validate(embCfg, log); err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			emb, err := embedder.New(embCfg)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			store, err := openPGStore(ctx)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			defer func() { _ = store.Close() }()

			b, err := ingestion.NewBackfill(emb, store, &ingestion.Config{
				Table:           envOr("SITREP_TABLE", "sitreps_2024"),
				KeyColumn:       keyColumn,
				EmbeddingColumn: envOr("SITREP_EMBEDDING_COLUMN", "embedding"),
				TextColumns:     columns,
				BatchSize:       batchSize,
				Dimensions:      embCfg.ExpectedDimensions(),
				MaxRows:         maxRows,
			})
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			stats, err := b.Run(ctx, func(msg string) {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			})
			log.Info("backfill finished",
				slog.Int("embedded", stats.Embedded),
				slog.Int("skipped", stats.Skipped),
				slog.Int("truncated", stats.Truncated),
				slog.Int("batches", stats.Batches),
			)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Text columns to embed, in order (required)")
	cmd.Flags().StringVar(&keyColumn, "key", "id", "Unique key column used to page through the table")
	cmd.Flags().IntVar(&batchSize, "batch", 64, "Rows per embedding request")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Stop after this many rows (0 = all)")
	_ = cmd.MarkFlagRequired("columns")

	return cmd
}
