package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/sitrep-go/internal/rag"
)

// RecordText renders the text columns of a sitrep row as the input to the
// embedding model: one "column: value" line per non-empty value, in column
// order, with runs of whitespace collapsed. A row with no text yields "".
func RecordText(rec rag.Record) string {
	var b strings.Builder
	for i, col := range rec.Columns {
		if i >= len(rec.Values) {
			break
		}
		v := valueText(rec.Values[i])
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", col, v)
	}
	return b.String()
}

func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(x), " ")
	case []byte:
		return strings.Join(strings.Fields(string(x)), " ")
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return strings.Join(strings.Fields(fmt.Sprint(x)), " ")
	}
}
