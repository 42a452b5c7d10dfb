// Package intent turns a free-text question about the sitrep table into a
// structured Intent: which columns matter, what the question is about, the
// time frame, and any filters. The completion service's reply is treated as
// data only. It is schema-validated and decoded, never evaluated.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/54b3r/sitrep-go/internal/completion"
	"github.com/54b3r/sitrep-go/internal/logging"
)

// UnavailableFocus is the QueryFocus of the default Intent.
const UnavailableFocus = "analysis unavailable"

// Sampling settings for the extraction call.
const (
	temperature = 0
	maxTokens   = 500
)

// ErrMalformed is wrapped by Parse when the reply is not a conforming Intent.
var ErrMalformed = errors.New("intent: malformed response")

// Intent is the structured reading of one query.
type Intent struct {
	RelevantColumns    []string `json:"relevant_columns"`
	QueryFocus         string   `json:"query_focus"`
	SpecificDataPoints []string `json:"specific_data_points"`
	TimeFrame          string   `json:"time_frame"`
	FilterCriteria     []string `json:"filter_criteria"`
}

// Default returns the degraded Intent used when extraction fails.
func Default() Intent {
	return Intent{
		RelevantColumns:    []string{},
		QueryFocus:         UnavailableFocus,
		SpecificDataPoints: []string{},
		FilterCriteria:     []string{},
	}
}

// IsDefault reports whether in is the degraded Intent.
func (in Intent) IsDefault() bool {
	return in.QueryFocus == UnavailableFocus &&
		len(in.RelevantColumns) == 0 &&
		len(in.SpecificDataPoints) == 0 &&
		in.TimeFrame == "" &&
		len(in.FilterCriteria) == 0
}

// schema describes the only reply shape accepted from the model.
var schema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required": []any{
		"relevant_columns", "query_focus", "specific_data_points", "time_frame", "filter_criteria",
	},
	"properties": map[string]any{
		"relevant_columns":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"query_focus":          map[string]any{"type": "string"},
		"specific_data_points": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"time_frame":           map[string]any{"type": "string"},
		"filter_criteria":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var schemaLoader = gojsonschema.NewGoLoader(schema)

// Parse validates raw against the Intent schema and decodes it. Markdown
// code fences around the object are tolerated.
func Parse(raw string) (Intent, error) {
	body := stripFences(raw)
	if body == "" {
		return Intent{}, fmt.Errorf("%w: empty reply", ErrMalformed)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return Intent{}, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(errs, ", "))
	}

	var in Intent
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	in.normalize()
	return in, nil
}

func (in *Intent) normalize() {
	if in.RelevantColumns == nil {
		in.RelevantColumns = []string{}
	}
	if in.SpecificDataPoints == nil {
		in.SpecificDataPoints = []string{}
	}
	if in.FilterCriteria == nil {
		in.FilterCriteria = []string{}
	}
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Extractor asks the completion service for an Intent.
type Extractor struct {
	completer completion.Completer
	system    string
}

// NewExtractor builds an Extractor. system is the analyst instruction shared
// with the answer stage; empty selects DefaultSystemInstruction.
func NewExtractor(c completion.Completer, system string) (*Extractor, error) {
	if c == nil {
		return nil, fmt.Errorf("intent: completer must not be nil")
	}
	if system == "" {
		system = DefaultSystemInstruction
	}
	return &Extractor{completer: c, system: system}, nil
}

// Extract makes exactly one completion call. It never fails: a transport
// error or a malformed reply yields Default(). The error is returned alongside
// for logging and metrics only.
func (e *Extractor) Extract(ctx context.Context, query string, columns []string) (Intent, error) {
	log := logging.FromContext(ctx)

	raw, err := e.completer.Complete(ctx, completion.Request{
		System:      e.system,
		User:        Prompt(query, columns),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSON:        true,
	})
	if err != nil {
		log.Warn("intent: completion failed, using default intent", slog.Any("error", err))
		return Default(), fmt.Errorf("intent: complete: %w", err)
	}

	in, err := Parse(raw)
	if err != nil {
		log.Warn("intent: rejected model reply, using default intent",
			slog.Any("error", err),
			slog.Int("reply_bytes", len(raw)),
		)
		return Default(), err
	}
	log.Debug("intent: extracted",
		slog.String("focus", in.QueryFocus),
		slog.Any("columns", in.RelevantColumns),
	)
	return in, nil
}

// Prompt renders the user message for the extraction call.
func Prompt(query string, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this query: %q\n", query)
	fmt.Fprintf(&b, "Available columns in the database: %s\n\n", strings.Join(columns, ", "))
	b.WriteString(`Reply with a single JSON object with exactly these keys:
  "relevant_columns": array of column names from the list above that are needed to answer,
  "query_focus": short description of what the question is about,
  "specific_data_points": array of the specific facts being asked for,
  "time_frame": the time period the question refers to, or "",
  "filter_criteria": array of conditions records should satisfy.
Use only the listed column names. Do not add any text outside the JSON object.`)
	return b.String()
}
