// Package pipeline orchestrates one question through intent extraction,
// query embedding, similarity retrieval and answer synthesis.
//
// Each stage absorbs its own failures and hands the next stage a usable
// value, so only an unavailable column catalog changes what the caller sees.
// Run walks an explicit state machine and records every transition in the
// Result trace.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/sitrep-go/internal/answer"
	"github.com/54b3r/sitrep-go/internal/intent"
	"github.com/54b3r/sitrep-go/internal/logging"
	"github.com/54b3r/sitrep-go/internal/rag"
)

// NoResultsAnswer is returned when retrieval finds nothing to ground on.
const NoResultsAnswer = "No results found for this query."

// Sentinel errors naming the stage that degraded. Only ErrCatalogUnavailable
// changes the outcome of a run; the others are recorded and absorbed.
var (
	ErrCatalogUnavailable   = errors.New("pipeline: column catalog unavailable")
	ErrIntentMalformed      = errors.New("pipeline: intent malformed")
	ErrEmbeddingUnavailable = errors.New("pipeline: embedding unavailable")
	ErrRetrievalFailed      = errors.New("pipeline: retrieval failed")
	ErrSynthesisFailed      = errors.New("pipeline: synthesis failed")
)

// State is a step of a run.
type State string

const (
	StateStart           State = "start"
	StateColumnsResolved State = "columns_resolved"
	StateIntentResolved  State = "intent_resolved"
	StateVectorResolved  State = "vector_resolved"
	StateRecordsResolved State = "records_resolved"
	StateAnswerResolved  State = "answer_resolved"
	StateFailed          State = "failed"
)

// Outcome is what the caller is told about a run.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeNoResults Outcome = "no_results"
	OutcomeNotFound  Outcome = "not_found"
)

// Result is the payload of one run.
type Result struct {
	Query    string
	Answer   string
	Records  []rag.Record
	Intent   intent.Intent
	Outcome  Outcome
	State    State
	Trace    []State
	Duration time.Duration
	// Degraded lists the stage errors absorbed during the run.
	Degraded []error
}

// MarshalJSON renders the API shape: answer, raw_data and query_details.
// raw_data and query_details are always present.
func (r *Result) MarshalJSON() ([]byte, error) {
	records := r.Records
	if records == nil {
		records = []rag.Record{}
	}
	return json.Marshal(struct {
		Answer       string        `json:"answer"`
		RawData      []rag.Record  `json:"raw_data"`
		QueryDetails intent.Intent `json:"query_details"`
	}{r.Answer, records, r.Intent})
}

// Err joins the absorbed stage errors, or returns nil for a clean run.
func (r *Result) Err() error {
	return errors.Join(r.Degraded...)
}

// Pipeline wires the four stages to a vector store. It holds no per-run
// state and is safe for concurrent use.
type Pipeline struct {
	store     rag.VectorStore
	extractor *intent.Extractor
	embedder  *rag.QueryEmbedder
	retriever *rag.Retriever
	synth     *answer.Synthesizer
	metrics   *Metrics
}

// Config carries the collaborators of a Pipeline. Metrics is optional.
type Config struct {
	Store       rag.VectorStore
	Extractor   *intent.Extractor
	Embedder    *rag.QueryEmbedder
	Retriever   *rag.Retriever
	Synthesizer *answer.Synthesizer
	Metrics     *Metrics
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline: store must not be nil")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("pipeline: intent extractor must not be nil")
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("pipeline: query embedder must not be nil")
	case cfg.Retriever == nil:
		return nil, fmt.Errorf("pipeline: retriever must not be nil")
	case cfg.Synthesizer == nil:
		return nil, fmt.Errorf("pipeline: synthesizer must not be nil")
	}
	return &Pipeline{
		store:     cfg.Store,
		extractor: cfg.Extractor,
		embedder:  cfg.Embedder,
		retriever: cfg.Retriever,
		synth:     cfg.Synthesizer,
		metrics:   cfg.Metrics,
	}, nil
}

// run holds the mutable state of one Run call.
type run struct {
	log *slog.Logger
	res *Result
}

func (r *run) to(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
	r.log.Debug("pipeline: transition", slog.String("state", string(s)))
}

// Run answers query. It always returns a Result; the caller inspects Outcome.
// The store session is released on every exit path.
func (p *Pipeline) Run(ctx context.Context, query string) *Result {
	start := time.Now()
	query = strings.TrimSpace(query)
	r := &run{
		log: logging.FromContext(ctx).With(slog.String("component", "pipeline")),
		res: &Result{Query: query, Intent: intent.Default()},
	}
	r.to(StateStart)

	defer func() {
		r.res.Duration = time.Since(start)
		p.metrics.observe(r.res)
		r.log.Info("pipeline: run finished",
			slog.String("outcome", string(r.res.Outcome)),
			slog.String("state", string(r.res.State)),
			slog.Int("records", len(r.res.Records)),
			slog.Duration("duration", r.res.Duration),
		)
	}()

	sess, err := p.store.Acquire(ctx)
	if err != nil {
		r.fail(p.metrics, fmt.Errorf("%w: acquire session: %w", ErrCatalogUnavailable, err))
		return r.res
	}
	defer func() {
		if err := sess.Release(); err != nil {
			r.log.Warn("pipeline: release session", slog.Any("error", err))
		}
	}()

	catalog, err := sess.Columns(ctx, p.retriever.Table())
	if err == nil && len(catalog) == 0 {
		err = fmt.Errorf("table %q has no columns", p.retriever.Table())
	}
	if err != nil {
		r.fail(p.metrics, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err))
		return r.res
	}
	r.to(StateColumnsResolved)

	in, err := p.extractor.Extract(ctx, query, catalog)
	if err != nil {
		r.degrade(p.metrics, "intent", fmt.Errorf("%w: %w", ErrIntentMalformed, err))
	}
	r.res.Intent = in
	r.to(StateIntentResolved)

	vec := p.embedder.Embed(ctx, EmbeddingText(query, in))
	if len(vec) == 0 {
		r.degrade(p.metrics, "embedding", ErrEmbeddingUnavailable)
	}
	r.to(StateVectorResolved)

	records, searchErr := p.search(ctx, sess, vec, in.RelevantColumns, catalog)
	if searchErr != nil {
		r.degrade(p.metrics, "retrieval", searchErr)
	}
	r.res.Records = records
	r.to(StateRecordsResolved)

	if len(records) == 0 {
		r.res.Answer = NoResultsAnswer
		r.res.Outcome = OutcomeNoResults
		r.to(StateAnswerResolved)
		return r.res
	}

	text, err := p.synth.Synthesize(ctx, query, in, records)
	if err != nil {
		r.degrade(p.metrics, "synthesis", fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	}
	r.res.Answer = text
	r.res.Outcome = OutcomeAnswered
	r.to(StateAnswerResolved)
	return r.res
}

// search runs retrieval and distinguishes a store failure from an honest
// empty result so the degradation can be counted.
func (p *Pipeline) search(ctx context.Context, sess rag.Session, vec []float32, columns, catalog []string) ([]rag.Record, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	probe := &errSession{Session: sess}
	records := p.retriever.Search(ctx, probe, vec, columns, catalog)
	if probe.err != nil {
		return records, fmt.Errorf("%w: %w", ErrRetrievalFailed, probe.err)
	}
	return records, nil
}

// errSession remembers the last Search error of the wrapped session.
type errSession struct {
	rag.Session
	err error
}

func (s *errSession) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Record, error) {
	recs, err := s.Session.Search(ctx, req)
	s.err = err
	return recs, err
}

func (r *run) fail(m *Metrics, err error) {
	r.res.Outcome = OutcomeNotFound
	r.res.Answer = ""
	r.res.Degraded = append(r.res.Degraded, err)
	m.degraded("catalog")
	r.log.Warn("pipeline: column catalog unavailable", slog.Any("error", err))
	r.to(StateFailed)
}

func (r *run) degrade(m *Metrics, stage string, err error) {
	r.res.Degraded = append(r.res.Degraded, err)
	m.degraded(stage)
}

// EmbeddingText is the text embedded for retrieval: the question enriched
// with the focus the intent stage extracted.
func EmbeddingText(query string, in intent.Intent) string {
	return fmt.Sprintf("Query: %s\nAnalysis Focus: %s", query, in.QueryFocus)
}
