package commands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/sitrep-go/internal/logging"
)

func TestSystemInstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruction.txt")
	if err := os.WriteFile(path, []byte("  You triage SOC sitreps.\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		env  string
		want string
	}{
		{name: "unset", env: "", want: ""},
		{name: "inline", env: "You are a SOC analyst.", want: "You are a SOC analyst."},
		{name: "from file", env: "@" + path, want: "You triage SOC sitreps."},
		{name: "missing file", env: "@" + path + ".missing", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SITREP_SYSTEM_INSTRUCTION", tc.env)
			if got := systemInstruction(); got != tc.want {
				t.Errorf("systemInstruction() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRetrieverFromEnv(t *testing.T) {
	t.Setenv("SITREP_TABLE", "soc.sitreps_2025")
	t.Setenv("SITREP_TOP_K", "7")
	t.Setenv("SITREP_DISTANCE", "l2")

	r, distance, err := retrieverFromEnv()
	if err != nil {
		t.Fatalf("retrieverFromEnv() error = %v", err)
	}
	if r.Table() != "soc.sitreps_2025" || r.TopK() != 7 || distance != "l2" {
		t.Errorf("table = %q, top_k = %d, distance = %q", r.Table(), r.TopK(), distance)
	}
}

func TestRetrieverFromEnv_Defaults(t *testing.T) {
	t.Setenv("SITREP_TABLE", "")
	t.Setenv("SITREP_TOP_K", "not-a-number")
	t.Setenv("SITREP_DISTANCE", "")

	r, distance, err := retrieverFromEnv()
	if err != nil {
		t.Fatalf("retrieverFromEnv() error = %v", err)
	}
	if r.Table() != "sitreps_2024" || r.TopK() != 5 || distance != "cosine" {
		t.Errorf("table = %q, top_k = %d, distance = %q", r.Table(), r.TopK(), distance)
	}
}

func TestRetrieverFromEnv_BadDistance(t *testing.T) {
	t.Setenv("SITREP_DISTANCE", "manhattan")
	if _, _, err := retrieverFromEnv(); err == nil {
		t.Fatal("expected error for unknown distance")
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "duckdb")
	_, _, err := openStore(t.Context(), "cosine")
	if err == nil || !strings.Contains(err.Error(), "duckdb") {
		t.Fatalf("openStore() error = %v", err)
	}
}

func TestOpenHistory_Disabled(t *testing.T) {
	t.Setenv("SITREP_HISTORY_DB", "disabled")
	h, closeFn := openHistory(discardLogger())
	defer closeFn()
	if h != nil {
		t.Fatal("expected nil history when disabled")
	}
}

func TestOpenHistory_Path(t *testing.T) {
	t.Setenv("SITREP_HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))
	h, closeFn := openHistory(discardLogger())
	defer closeFn()
	if h == nil {
		t.Fatal("expected history log")
	}
	entries, err := h.Recent(t.Context(), 5)
	if err != nil || len(entries) != 0 {
		t.Fatalf("Recent() = %v, %v", entries, err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "sitrep ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBackfillCmd_RejectsQdrant(t *testing.T) {
	t.Setenv("STORE_BACKEND", "qdrant")
	cmd := NewBackfillCmd()
	cmd.SetArgs([]string{"--columns", "description"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func discardLogger() *slog.Logger { return logging.Discard() }

func TestAskCmd_RejectsBlankQuery(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "no-such-backend")
	cmd := NewAskCmd()
	cmd.SetArgs([]string{"   ", "\t"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no query provided") {
		t.Fatalf("Execute() error = %v, want no query provided", err)
	}
}
