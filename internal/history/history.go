// Package history keeps a SQLite log of finished pipeline runs. Nothing in the
// pipeline reads it back; it exists for operators and the /api/history
// endpoint.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/sitrep-go/internal/pipeline"
)

// Entry is one logged run.
type Entry struct {
	ID          int64           `json:"id"`
	Query       string          `json:"query"`
	Outcome     string          `json:"outcome"`
	Intent      json.RawMessage `json:"intent"`
	RecordCount int             `json:"record_count"`
	DurationMS  int64           `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Log persists and lists runs. Implementations must be safe for concurrent use.
type Log interface {
	// Record appends one finished run.
	Record(ctx context.Context, res *pipeline.Result) error
	// Recent returns up to n runs, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}

// SQLiteLog is a Log backed by a local SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// DefaultDBPath resolves to ~/.sitrep/history.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".sitrep")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) the log at path and runs the schema migration.
// Use ":memory:" in tests.
func Open(path string) (*SQLiteLog, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One writer connection avoids SQLITE_BUSY and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    query        TEXT    NOT NULL,
    outcome      TEXT    NOT NULL,
    intent       TEXT    NOT NULL,
    record_count INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record appends res to the log.
func (l *SQLiteLog) Record(ctx context.Context, res *pipeline.Result) error {
	in, err := json.Marshal(res.Intent)
	if err != nil {
		return fmt.Errorf("history: marshal intent: %w", err)
	}
	const q = `INSERT INTO runs (query, outcome, intent, record_count, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, q,
		res.Query, string(res.Outcome), string(in), len(res.Records),
		res.Duration.Milliseconds(), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, query, outcome, intent, record_count, duration_ms, created_at
FROM   runs
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := l.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var in string
		var ts int64
		if err := rows.Scan(&e.ID, &e.Query, &e.Outcome, &in, &e.RecordCount, &e.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.Intent = json.RawMessage(in)
		e.CreatedAt = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (l *SQLiteLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}
