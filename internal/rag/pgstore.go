package rag

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/54b3r/sitrep-go/internal/logging"
)

// distanceAlias names the computed distance column. It is stripped from records.
const distanceAlias = "__distance"

// PGConfig holds connection settings for the PostgreSQL store.
type PGConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// OpenDB opens and pings a pgx-backed *sql.DB.
func OpenDB(ctx context.Context, cfg PGConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgstore: DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

// PGStore implements VectorStore on PostgreSQL with the pgvector extension.
type PGStore struct {
	db *sql.DB

	extMu    sync.Mutex
	extReady bool
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Acquire checks out a dedicated connection for one run. The first successful
// acquisition also makes sure the vector extension exists; a failed check is
// logged and retried on the next acquisition.
func (s *PGStore) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: acquire connection: %w", err)
	}
	s.ensureExtension(ctx, conn)
	return &pgSession{conn: conn}, nil
}

func (s *PGStore) ensureExtension(ctx context.Context, conn *sql.Conn) {
	s.extMu.Lock()
	defer s.extMu.Unlock()
	if s.extReady {
		return
	}
	if _, err := conn.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		logging.FromContext(ctx).Warn("pgstore: vector extension check failed", slog.Any("error", err))
		return
	}
	s.extReady = true
}

// Ping reports whether the database is reachable.
func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgstore: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

// pgSession is one checked-out connection.
type pgSession struct {
	conn *sql.Conn
	once sync.Once
	err  error
}

// Columns reads the table's columns from information_schema in ordinal order.
// A schema-qualified name ("ops.sitreps_2024") restricts the lookup to that
// schema; an unqualified one to current_schema().
func (p *pgSession) Columns(ctx context.Context, table string) ([]string, error) {
	schema, name := splitTable(table)
	query := `SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema() ORDER BY ordinal_position`
	args := []any{name}
	if schema != "" {
		query = `SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = $2 ORDER BY ordinal_position`
		args = append(args, schema)
	}

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list columns of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("pgstore: scan column name: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list columns of %q: %w", table, err)
	}
	return cols, nil
}

// Search runs one nearest-neighbour query over rows that have an embedding.
// Identifiers are quoted; the vector and limit are bound parameters.
func (p *pgSession) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	query := searchSQL(req)
	rows, err := p.conn.QueryContext(ctx, query, pgvector.NewVector(req.Vector), req.Limit)
	if err != nil {
		return nil, fmt.Errorf("pgstore: search %q: %w", req.Table, err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("pgstore: result columns: %w", err)
	}

	records := []Record{}
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("pgstore: scan row: %w", err)
		}

		rec := Record{}
		skip := false
		for i, n := range names {
			switch n {
			case distanceAlias:
				if raw[i] == nil {
					skip = true
					continue
				}
				d, err := toFloat(raw[i])
				if err != nil {
					return nil, fmt.Errorf("pgstore: distance: %w", err)
				}
				rec.Distance = d
			case req.EmbeddingColumn:
			default:
				rec.Columns = append(rec.Columns, n)
				rec.Values = append(rec.Values, normalize(raw[i]))
			}
		}
		if skip {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: search %q: %w", req.Table, err)
	}
	return records, nil
}

// Release returns the connection to the pool. Later calls are no-ops.
func (p *pgSession) Release() error {
	p.once.Do(func() { p.err = p.conn.Close() })
	return p.err
}

// searchSQL renders the nearest-neighbour statement for req.
func searchSQL(req SearchRequest) string {
	projection := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		projection = strings.Join(quoted, ", ")
	}
	embedding := pgx.Identifier{req.EmbeddingColumn}.Sanitize()
	return fmt.Sprintf("SELECT %s, %s %s $1::vector AS %s FROM %s WHERE %s IS NOT NULL ORDER BY %s LIMIT $2",
		projection,
		embedding,
		req.Distance.Operator(),
		distanceAlias,
		tableIdentifier(req.Table),
		embedding,
		distanceAlias,
	)
}

// PendingRow is a row whose embedding is still NULL.
type PendingRow struct {
	Key    any
	Record Record
}

// PendingRows returns up to limit rows of table whose embedding column is
// NULL, ordered by keyColumn, with textColumns as the record. A non-nil after
// restricts the page to keys greater than it.
func (s *PGStore) PendingRows(ctx context.Context, table, keyColumn, embeddingColumn string, textColumns []string, after any, limit int) ([]PendingRow, error) {
	if len(textColumns) == 0 {
		return nil, fmt.Errorf("pgstore: at least one text column is required")
	}
	cols := make([]string, len(textColumns))
	for i, c := range textColumns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	key := pgx.Identifier{keyColumn}.Sanitize()
	where := pgx.Identifier{embeddingColumn}.Sanitize() + " IS NULL"
	args := []any{limit}
	if after != nil {
		where += " AND " + key + " > $2"
		args = append(args, after)
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s LIMIT $1",
		key,
		strings.Join(cols, ", "),
		tableIdentifier(table),
		where,
		key,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: pending rows of %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []PendingRow
	for rows.Next() {
		raw := make([]any, len(textColumns)+1)
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("pgstore: scan pending row: %w", err)
		}
		rec := Record{Columns: append([]string(nil), textColumns...), Values: make([]any, len(textColumns))}
		for i := range textColumns {
			rec.Values[i] = normalize(raw[i+1])
		}
		out = append(out, PendingRow{Key: normalize(raw[0]), Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: pending rows of %q: %w", table, err)
	}
	return out, nil
}

// SetEmbedding writes vec into the embedding column of the row identified by key.
func (s *PGStore) SetEmbedding(ctx context.Context, table, keyColumn, embeddingColumn string, key any, vec []float32) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1::vector WHERE %s = $2",
		tableIdentifier(table),
		pgx.Identifier{embeddingColumn}.Sanitize(),
		pgx.Identifier{keyColumn}.Sanitize(),
	)
	res, err := s.db.ExecContext(ctx, query, pgvector.NewVector(vec), key)
	if err != nil {
		return fmt.Errorf("pgstore: set embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pgstore: set embedding: no row with %s = %v", keyColumn, key)
	}
	return nil
}

func splitTable(table string) (schema, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func tableIdentifier(table string) string {
	schema, name := splitTable(table)
	if schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{schema, name}.Sanitize()
}

// normalize turns driver byte slices into strings so records encode as text.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toFloat(v any) (float64, error) {
	switch d := v.(type) {
	case float64:
		return d, nil
	case float32:
		return float64(d), nil
	case int64:
		return float64(d), nil
	case []byte:
		return strconv.ParseFloat(string(d), 64)
	case string:
		return strconv.ParseFloat(d, 64)
	case nil:
		return 0, fmt.Errorf("null distance")
	default:
		return 0, fmt.Errorf("unexpected distance type %T", v)
	}
}
