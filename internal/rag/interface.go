// Package rag defines the retrieval half of the sitrep pipeline: the records a
// similarity search returns, the store sessions that produce them, and the
// query embedder and retriever that sit on top. Concrete stores (PostgreSQL
// with pgvector, Qdrant) satisfy VectorStore so the pipeline never depends on
// a specific backend.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one row returned by a similarity search. Columns and Values are
// parallel and keep the order the store returned them in.
type Record struct {
	Columns []string
	Values  []any
	// Distance is the vector distance to the query. Lower is nearer.
	Distance float64
}

// Get returns the value of column name.
func (r Record) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the record as a JSON object whose keys follow column
// order. Distance is not part of the encoding.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		var v any
		if i < len(r.Values) {
			v = r.Values[i]
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("rag: marshal column %q: %w", c, err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Distance selects the vector distance function used for ordering.
type Distance string

const (
	// DistanceCosine orders by cosine distance (pgvector <=>).
	DistanceCosine Distance = "cosine"
	// DistanceL2 orders by Euclidean distance (pgvector <->).
	DistanceL2 Distance = "l2"
	// DistanceInner orders by negative inner product (pgvector <#>).
	DistanceInner Distance = "inner"
)

// ParseDistance maps a config value to a Distance. Empty means cosine.
func ParseDistance(s string) (Distance, error) {
	switch Distance(strings.ToLower(strings.TrimSpace(s))) {
	case "", DistanceCosine:
		return DistanceCosine, nil
	case DistanceL2:
		return DistanceL2, nil
	case DistanceInner:
		return DistanceInner, nil
	default:
		return "", fmt.Errorf("rag: unknown distance %q: valid values: cosine, l2, inner", s)
	}
}

// Operator returns the pgvector operator for d.
func (d Distance) Operator() string {
	switch d {
	case DistanceL2:
		return "<->"
	case DistanceInner:
		return "<#>"
	default:
		return "<=>"
	}
}

// SearchRequest is one nearest-neighbour query against a table.
type SearchRequest struct {
	Table string
	// EmbeddingColumn holds the stored vectors. It is never returned in records.
	EmbeddingColumn string
	Vector          []float32
	// Columns is the projection. Empty projects every column.
	Columns  []string
	Limit    int
	Distance Distance
}

// Session is a store connection checked out for one pipeline run.
// Release must be called exactly once, on every exit path.
type Session interface {
	// Columns returns the table's column names in schema order.
	Columns(ctx context.Context, table string) ([]string, error)
	// Search returns at most req.Limit records ordered nearest first.
	Search(ctx context.Context, req SearchRequest) ([]Record, error)
	// Release returns the underlying connection to its pool.
	Release() error
}

// VectorStore hands out sessions. Implementations must be safe to call from
// multiple goroutines.
type VectorStore interface {
	Acquire(ctx context.Context) (Session, error)
	// Ping reports whether the backing service is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
