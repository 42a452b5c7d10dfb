package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/sitrep-go/internal/intent"
	"github.com/54b3r/sitrep-go/internal/pipeline"
	"github.com/54b3r/sitrep-go/internal/rag"
)

// openTestLog opens an in-memory SQLiteLog for use in tests.
func openTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func Test_Log_RecordAndRecent(t *testing.T) {
	t.Parallel()
	l := openTestLog(t)
	ctx := context.Background()

	res := &pipeline.Result{
		Query:    "What incidents involved ransomware last week?",
		Outcome:  pipeline.OutcomeAnswered,
		Intent:   intent.Intent{RelevantColumns: []string{"description"}, QueryFocus: "ransomware incidents", SpecificDataPoints: []string{}, FilterCriteria: []string{}},
		Records:  []rag.Record{{Columns: []string{"description"}, Values: []any{"LockBit"}}},
		Duration: 1500 * time.Millisecond,
	}
	if err := l.Record(ctx, res); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Query != res.Query || e.Outcome != "answered" || e.RecordCount != 1 || e.DurationMS != 1500 {
		t.Errorf("entry = %+v", e)
	}
	var in intent.Intent
	if err := json.Unmarshal(e.Intent, &in); err != nil {
		t.Fatalf("intent column is not JSON: %v", err)
	}
	if in.QueryFocus != "ransomware incidents" {
		t.Errorf("intent focus = %q", in.QueryFocus)
	}
}

func Test_Log_RecentNewestFirstAndLimited(t *testing.T) {
	t.Parallel()
	l := openTestLog(t)
	ctx := context.Background()

	for i := range 5 {
		res := &pipeline.Result{Query: fmt.Sprintf("q%d", i), Outcome: pipeline.OutcomeNoResults, Intent: intent.Default()}
		if err := l.Record(ctx, res); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("want 3 entries, got %d", len(entries))
	}
	if entries[0].Query != "q4" || entries[2].Query != "q2" {
		t.Errorf("order = %s,%s,%s", entries[0].Query, entries[1].Query, entries[2].Query)
	}
}

func Test_Log_EmptyIsNotNil(t *testing.T) {
	t.Parallel()
	l := openTestLog(t)

	entries, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	b, _ := json.Marshal(entries)
	if string(b) != "[]" {
		t.Errorf("json = %s, want []", b)
	}
}

func Test_Open_AppliesPragmas(t *testing.T) {
	t.Parallel()

	l, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	var mode string
	if err := l.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := l.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}
