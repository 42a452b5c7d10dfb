package ingestion

import (
	"testing"
	"time"

	"github.com/54b3r/sitrep-go/internal/rag"
)

func TestRecordText(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	tests := []struct {
		name string
		rec  rag.Record
		want string
	}{
		{
			name: "all columns",
			rec:  rag.Record{Columns: []string{"title", "severity"}, Values: []any{"Ransomware on FS01", int64(4)}},
			want: "title: Ransomware on FS01\nseverity: 4",
		},
		{
			name: "null and blank skipped",
			rec:  rag.Record{Columns: []string{"title", "notes", "description"}, Values: []any{nil, "   ", "Phishing"}},
			want: "description: Phishing",
		},
		{
			name: "whitespace collapsed",
			rec:  rag.Record{Columns: []string{"description"}, Values: []any{"Encrypted\n\n shares\ton FS01 "}},
			want: "description: Encrypted shares on FS01",
		},
		{
			name: "bytes and time",
			rec:  rag.Record{Columns: []string{"raw", "reported_at"}, Values: []any{[]byte("beacon"), ts}},
			want: "raw: beacon\nreported_at: 2024-05-01T06:00:00Z",
		},
		{
			name: "no text",
			rec:  rag.Record{Columns: []string{"title"}, Values: []any{nil}},
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := RecordText(tc.rec); got != tc.want {
				t.Errorf("RecordText() = %q, want %q", got, tc.want)
			}
		})
	}
}
