// Package ingestion fills in missing embeddings of the sitrep table. Rows
// whose embedding column is NULL are read in key order, their text columns
// are rendered and embedded in batches, and the vectors are written back.
// This pipeline is invoked by the `sitrep backfill` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/sitrep-go/internal/budget"
	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/rag"
)

// Store is the part of rag.PGStore the backfill needs.
type Store interface {
	PendingRows(ctx context.Context, table, keyColumn, embeddingColumn string, textColumns []string, after any, limit int) ([]rag.PendingRow, error)
	SetEmbedding(ctx context.Context, table, keyColumn, embeddingColumn string, key any, vec []float32) error
}

// Config holds the configuration for a backfill run.
type Config struct {
	// Table is the sitrep table to backfill.
	Table string

	// KeyColumn uniquely identifies a row and orders the scan. Defaults to "id".
	KeyColumn string

	// EmbeddingColumn receives the vectors. Defaults to "embedding".
	EmbeddingColumn string

	// TextColumns are rendered, in order, into the text that is embedded.
	TextColumns []string

	// BatchSize is the number of rows embedded per request. Defaults to 64.
	BatchSize int

	// MaxTokens caps the estimated size of each text. Defaults to
	// budget.DefaultMaxEmbeddingTokens.
	MaxTokens int

	// Dimensions, when set, rejects vectors of any other length.
	Dimensions int

	// MaxRows stops the run after this many rows are written. Zero means all.
	MaxRows int
}

// Stats summarises a backfill run.
type Stats struct {
	// Embedded is the number of rows whose embedding was written.
	Embedded int
	// Skipped is the number of rows with no text to embed. They stay NULL.
	Skipped int
	// Truncated is the number of texts cut to MaxTokens.
	Truncated int
	// Batches is the number of embedding requests made.
	Batches int
}

// Backfill orchestrates the read, embed and write flow.
type Backfill struct {
	// embedder converts rendered rows into dense vector embeddings.
	embedder rag.Embedder

	// store reads pending rows and persists vectors.
	store Store

	// cfg holds the resolved configuration.
	cfg *Config
}

// NewBackfill constructs a Backfill from the provided dependencies and config.
func NewBackfill(embedder rag.Embedder, store Store, cfg *Config) (*Backfill, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil || cfg.Table == "" {
		return nil, fmt.Errorf("ingestion: table must not be empty")
	}
	if len(cfg.TextColumns) == 0 {
		return nil, fmt.Errorf("ingestion: at least one text column is required")
	}
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = "id"
	}
	if cfg.EmbeddingColumn == "" {
		cfg.EmbeddingColumn = "embedding"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = budget.DefaultMaxEmbeddingTokens
	}

	return &Backfill{embedder: embedder, store: store, cfg: cfg}, nil
}

// Run embeds every pending row and returns the first error encountered.
// Progress is reported via the optional progress callback. Rows already
// written stay written when Run fails part way.
func (b *Backfill) Run(ctx context.Context, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	var (
		stats Stats
		after any
	)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		limit := b.cfg.BatchSize
		if b.cfg.MaxRows > 0 {
			limit = min(limit, b.cfg.MaxRows-stats.Embedded)
			if limit <= 0 {
				return stats, nil
			}
		}

		rows, err := b.store.PendingRows(ctx, b.cfg.Table, b.cfg.KeyColumn, b.cfg.EmbeddingColumn, b.cfg.TextColumns, after, limit)
		if err != nil {
			return stats, fmt.Errorf("ingestion: read pending rows: %w", err)
		}
		if len(rows) == 0 {
			return stats, nil
		}
		after = rows[len(rows)-1].Key

		keys := make([]any, 0, len(rows))
		texts := make([]string, 0, len(rows))
		for _, row := range rows {
			text := RecordText(row.Record)
			if text == "" {
				stats.Skipped++
				log.Warn("ingestion: row has no text to embed", slog.Any("key", row.Key))
				continue
			}
			if cut := budget.Truncate(text, b.cfg.MaxTokens); len(cut) < len(text) {
				stats.Truncated++
				text = cut
			}
			keys = append(keys, row.Key)
			texts = append(texts, text)
		}
		if len(texts) == 0 {
			continue
		}

		vecs, err := b.embedder.Embed(ctx, texts)
		stats.Batches++
		if err != nil {
			return stats, fmt.Errorf("ingestion: embedding failed after key %v: %w", keys[0], err)
		}
		if len(vecs) != len(texts) {
			return stats, fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}

		for i, vec := range vecs {
			if b.cfg.Dimensions > 0 && len(vec) != b.cfg.Dimensions {
				return stats, fmt.Errorf("ingestion: vector for key %v has %d dimensions, want %d", keys[i], len(vec), b.cfg.Dimensions)
			}
			if err := b.store.SetEmbedding(ctx, b.cfg.Table, b.cfg.KeyColumn, b.cfg.EmbeddingColumn, keys[i], vec); err != nil {
				return stats, fmt.Errorf("ingestion: write embedding: %w", err)
			}
			stats.Embedded++
		}

		progress(fmt.Sprintf("embedded %d rows (%d skipped)", stats.Embedded, stats.Skipped))
	}
}
