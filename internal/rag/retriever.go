package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/54b3r/sitrep-go/internal/logging"
)

// defaultTopK is the number of records returned when no limit is configured.
const defaultTopK = 5

// QueryEmbedder turns a single text into a query vector. It never fails: any
// error, or a vector of the wrong length, yields an empty vector.
type QueryEmbedder struct {
	embedder   Embedder
	dimensions int
}

// NewQueryEmbedder wraps e. dimensions is the length of the stored vectors;
// zero disables the length check.
func NewQueryEmbedder(e Embedder, dimensions int) (*QueryEmbedder, error) {
	if e == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	return &QueryEmbedder{embedder: e, dimensions: dimensions}, nil
}

// Embed makes exactly one embedding call for text.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) []float32 {
	log := logging.FromContext(ctx)

	vecs, err := q.embedder.Embed(ctx, []string{text})
	if err != nil {
		log.Warn("rag: query embedding failed", slog.Any("error", err))
		return nil
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		log.Warn("rag: embedder returned no vector", slog.Int("vectors", len(vecs)))
		return nil
	}
	if q.dimensions > 0 && len(vecs[0]) != q.dimensions {
		log.Warn("rag: embedding has unexpected dimensionality",
			slog.Int("got", len(vecs[0])),
			slog.Int("want", q.dimensions),
		)
		return nil
	}
	return vecs[0]
}

// RetrieverConfig holds the table-level settings of a Retriever.
type RetrieverConfig struct {
	// Table is the sitrep table (or Qdrant collection) to search.
	Table string
	// EmbeddingColumn holds the stored vectors (default: embedding).
	EmbeddingColumn string
	// TopK caps the number of records (default: 5).
	TopK     int
	Distance Distance
}

// Retriever runs similarity searches against a session. It holds no
// per-request state and is safe for concurrent use.
type Retriever struct {
	cfg RetrieverConfig
}

// NewRetriever validates cfg and fills defaults.
func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("rag: table must not be empty")
	}
	if cfg.EmbeddingColumn == "" {
		cfg.EmbeddingColumn = "embedding"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Distance == "" {
		cfg.Distance = DistanceCosine
	}
	return &Retriever{cfg: cfg}, nil
}

// Table returns the configured table name.
func (r *Retriever) Table() string { return r.cfg.Table }

// TopK returns the configured record limit.
func (r *Retriever) TopK() int { return r.cfg.TopK }

// Search returns the records nearest to vector, projecting the requested
// columns that exist in catalog. It never fails: an empty vector returns no
// records without touching the store, and a store error is logged and
// reported as no records.
func (r *Retriever) Search(ctx context.Context, sess Session, vector []float32, columns, catalog []string) []Record {
	log := logging.FromContext(ctx)

	if len(vector) == 0 {
		log.Debug("rag: empty query vector, skipping search")
		return nil
	}

	projection, dropped := Project(columns, catalog, r.cfg.EmbeddingColumn)
	if len(dropped) > 0 {
		log.Warn("rag: dropping columns not in catalog",
			slog.Any("dropped", dropped),
			slog.String("table", r.cfg.Table),
		)
	}

	records, err := sess.Search(ctx, SearchRequest{
		Table:           r.cfg.Table,
		EmbeddingColumn: r.cfg.EmbeddingColumn,
		Vector:          vector,
		Columns:         projection,
		Limit:           r.cfg.TopK,
		Distance:        r.cfg.Distance,
	})
	if err != nil {
		log.Warn("rag: similarity search failed", slog.Any("error", err))
		return nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Distance < records[j].Distance
	})
	if len(records) > r.cfg.TopK {
		records = records[:r.cfg.TopK]
	}
	return records
}

// Project filters requested against catalog. The kept columns come back in
// catalog order without duplicates; the embedding column is never projected.
// A nil result means "every column". Names missing from catalog are returned
// as dropped.
func Project(requested, catalog []string, embeddingColumn string) (kept, dropped []string) {
	if len(requested) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(requested))
	for _, c := range requested {
		if c == "" || c == embeddingColumn {
			continue
		}
		if !slices.Contains(catalog, c) {
			if !slices.Contains(dropped, c) {
				dropped = append(dropped, c)
			}
			continue
		}
		want[c] = true
	}
	for _, c := range catalog {
		if want[c] {
			kept = append(kept, c)
		}
	}
	return kept, dropped
}
