// Package answer synthesizes the natural-language reply from the question,
// the extracted intent and the retrieved sitrep records.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/sitrep-go/internal/budget"
	"github.com/54b3r/sitrep-go/internal/completion"
	"github.com/54b3r/sitrep-go/internal/intent"
	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/rag"
)

// ErrorPrefix starts every answer produced from a failed completion call.
const ErrorPrefix = "Error getting AI response: "

const (
	temperature = 0.1
	maxTokens   = 1000
)

// Config tunes a Synthesizer.
type Config struct {
	// System is the analyst instruction (default: intent.DefaultSystemInstruction).
	System string
	// MaxContextTokens caps the estimated prompt size; records that would
	// exceed it are dropped from the tail (default: budget.DefaultMaxContextTokens).
	MaxContextTokens int
}

// Synthesizer produces answers grounded in retrieved records.
type Synthesizer struct {
	completer completion.Completer
	cfg       Config
}

// New builds a Synthesizer.
func New(c completion.Completer, cfg Config) (*Synthesizer, error) {
	if c == nil {
		return nil, fmt.Errorf("answer: completer must not be nil")
	}
	if cfg.System == "" {
		cfg.System = intent.DefaultSystemInstruction
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Synthesizer{completer: c, cfg: cfg}, nil
}

// Synthesize makes one completion call. A failed call does not return an
// error to the caller: the answer text itself describes the failure, and the
// error is returned alongside for logging and metrics.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, in intent.Intent, records []rag.Record) (string, error) {
	log := logging.FromContext(ctx)

	user, kept := s.Context(query, in, records)
	if kept < len(records) {
		log.Warn("answer: dropped records over the context budget",
			slog.Int("kept", kept),
			slog.Int("retrieved", len(records)),
			slog.Int("max_tokens", s.cfg.MaxContextTokens),
		)
	}

	reply, err := s.completer.Complete(ctx, completion.Request{
		System:      s.cfg.System,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		log.Warn("answer: completion failed", slog.Any("error", err))
		return ErrorPrefix + err.Error(), fmt.Errorf("answer: complete: %w", err)
	}
	return reply, nil
}

// Context renders the grounding message and reports how many records it holds.
func (s *Synthesizer) Context(query string, in intent.Intent, records []rag.Record) (string, int) {
	var head strings.Builder
	fmt.Fprintf(&head, "Query: %s\n", query)
	fmt.Fprintf(&head, "Analysis Focus: %s\n", in.QueryFocus)
	if in.TimeFrame != "" {
		fmt.Fprintf(&head, "Time Frame: %s\n", in.TimeFrame)
	}
	if len(in.FilterCriteria) > 0 {
		fmt.Fprintf(&head, "Filter Criteria: %s\n", strings.Join(in.FilterCriteria, "; "))
	}
	if len(in.SpecificDataPoints) > 0 {
		fmt.Fprintf(&head, "Requested Data Points: %s\n", strings.Join(in.SpecificDataPoints, "; "))
	}
	head.WriteString("Retrieved Data:\n")

	lines := make([]string, 0, len(records))
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			b = []byte(fmt.Sprintf("%q", fmt.Sprint(r.Values)))
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n", i+1, b))
	}

	fixed := budget.Estimate(s.cfg.System) + budget.Estimate(head.String())
	kept := budget.FitPrefix(fixed, lines, s.cfg.MaxContextTokens)

	var b strings.Builder
	b.WriteString(head.String())
	for _, l := range lines[:kept] {
		b.WriteString(l)
	}
	return b.String(), kept
}
