package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Distance is the metric the collection was created with. It converts
	// Qdrant scores into ascending distances.
	Distance Distance
}

// QdrantStore implements VectorStore on a Qdrant instance. Each sitrep table
// is a collection; payload keys play the role of columns.
type QdrantStore struct {
	client   *qdrant.Client
	distance Distance
}

// NewQdrantStore connects to Qdrant. Collections are not created: the store
// only reads what the loader wrote.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, distance: cfg.Distance}, nil
}

// Acquire returns a session over the shared gRPC client.
func (s *QdrantStore) Acquire(context.Context) (Session, error) {
	return &qdrantSession{store: s}, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

type qdrantSession struct {
	store *QdrantStore
}

// Columns samples one point of the collection and returns its payload keys
// sorted by name. Qdrant has no schema, so this is the best available catalog.
func (q *qdrantSession) Columns(ctx context.Context, collection string) ([]string, error) {
	exists, err := q.store.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection %q: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("qdrant: collection %q does not exist", collection)
	}

	points, err := q.store.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: sample collection %q: %w", collection, err)
	}

	cols := []string{}
	if len(points) == 0 {
		return cols, nil
	}
	for k := range points[0].GetPayload() {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// Search queries the collection and converts scores into distances.
func (q *qdrantSession) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	limit := uint64(req.Limit)
	selector := qdrant.NewWithPayload(true)
	if len(req.Columns) > 0 {
		selector = qdrant.NewWithPayloadInclude(req.Columns...)
	}

	results, err := q.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: req.Table,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          &limit,
		WithPayload:    selector,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		rec := Record{Distance: scoreToDistance(q.store.distance, r.GetScore())}
		payload := r.GetPayload()
		keys := req.Columns
		if len(keys) == 0 {
			keys = make([]string, 0, len(payload))
			for k := range payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		for _, k := range keys {
			v, ok := payload[k]
			if !ok || k == req.EmbeddingColumn {
				continue
			}
			rec.Columns = append(rec.Columns, k)
			rec.Values = append(rec.Values, valueToAny(v))
		}
		records = append(records, rec)
	}
	return records, nil
}

// Release is a no-op; the gRPC client is shared.
func (q *qdrantSession) Release() error { return nil }

// scoreToDistance maps a Qdrant score onto the pgvector distance scale so
// lower always means nearer.
func scoreToDistance(d Distance, score float32) float64 {
	switch d {
	case DistanceL2:
		return float64(score)
	case DistanceInner:
		return -float64(score)
	default:
		return 1 - float64(score)
	}
}

func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = valueToAny(item)
		}
		return out
	case *qdrant.Value_StructValue:
		fields := k.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for name, f := range fields {
			out[name] = valueToAny(f)
		}
		return out
	default:
		return nil
	}
}
