package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/sitrep-go/internal/answer"
	"github.com/54b3r/sitrep-go/internal/completion"
	"github.com/54b3r/sitrep-go/internal/embedder"
	"github.com/54b3r/sitrep-go/internal/history"
	"github.com/54b3r/sitrep-go/internal/intent"
	"github.com/54b3r/sitrep-go/internal/pipeline"
	"github.com/54b3r/sitrep-go/internal/provider"
	"github.com/54b3r/sitrep-go/internal/rag"
	"github.com/54b3r/sitrep-go/internal/server"
	"github.com/54b3r/sitrep-go/internal/tracing"
)

// app bundles everything a command needs to run the pipeline.
type app struct {
	pipeline    *pipeline.Pipeline
	store       rag.VectorStore
	storeName   string
	retriever   *rag.Retriever
	providerCfg *provider.Config
	answerModel model.BaseChatModel
}

// Close releases the store.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", slog.Any("error", err))
	}
}

// buildApp wires provider, embedder, store and pipeline from the environment.
// reg may be nil to skip pipeline metrics.
func buildApp(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	providerCfg := provider.ConfigFromEnv()
	intentModel, answerModel, err := provider.NewPair(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	intentCompleter, err := completion.New(intentModel, "intent")
	if err != nil {
		return nil, err
	}
	answerCompleter, err := completion.New(answerModel, "answer")
	if err != nil {
		return nil, err
	}

	system := systemInstruction()
	extractor, err := intent.NewExtractor(intentCompleter, system)
	if err != nil {
		return nil, err
	}
	synth, err := answer.New(answerCompleter, answer.Config{
		System:           system,
		MaxContextTokens: envInt("SITREP_MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		return nil, err
	}

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.Validate(embCfg, log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(embCfg)
	if err != nil {
		return nil, err
	}
	queryEmbedder, err := rag.NewQueryEmbedder(emb, embCfg.ExpectedDimensions())
	if err != nil {
		return nil, err
	}

	retriever, distance, err := retrieverFromEnv()
	if err != nil {
		return nil, err
	}

	store, storeName, err := openStore(ctx, distance)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", slog.String("backend", storeName), slog.String("table", retriever.Table()))

	var metrics *pipeline.Metrics
	if reg != nil {
		metrics = pipeline.NewMetrics(reg)
	}

	p, err := pipeline.New(pipeline.Config{
		Store:       store,
		Extractor:   extractor,
		Embedder:    queryEmbedder,
		Retriever:   retriever,
		Synthesizer: synth,
		Metrics:     metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		pipeline:    p,
		store:       store,
		storeName:   storeName,
		retriever:   retriever,
		providerCfg: providerCfg,
		answerModel: answerModel,
	}, nil
}

// systemInstruction returns SITREP_SYSTEM_INSTRUCTION, or the contents of the
// file it names when prefixed with "@". Empty selects the built-in default.
func systemInstruction() string {
	v := os.Getenv("SITREP_SYSTEM_INSTRUCTION")
	if path, ok := strings.CutPrefix(v, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("system instruction file unreadable, using default", slog.String("path", path), slog.Any("error", err))
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	return v
}

// retrieverFromEnv reads SITREP_TABLE, SITREP_EMBEDDING_COLUMN, SITREP_TOP_K
// and SITREP_DISTANCE.
func retrieverFromEnv() (*rag.Retriever, rag.Distance, error) {
	distance, err := rag.ParseDistance(os.Getenv("SITREP_DISTANCE"))
	if err != nil {
		return nil, "", err
	}
	r, err := rag.NewRetriever(rag.RetrieverConfig{
		Table:           envOr("SITREP_TABLE", "sitreps_2024"),
		EmbeddingColumn: envOr("SITREP_EMBEDDING_COLUMN", "embedding"),
		TopK:            envInt("SITREP_TOP_K", 5),
		Distance:        distance,
	})
	if err != nil {
		return nil, "", err
	}
	return r, distance, nil
}

// openStore opens the vector store selected by STORE_BACKEND (postgres or
// qdrant) and returns it with its readiness label.
func openStore(ctx context.Context, distance rag.Distance) (rag.VectorStore, string, error) {
	switch backend := envOr("STORE_BACKEND", "postgres"); backend {
	case "postgres":
		store, err := openPGStore(ctx)
		if err != nil {
			return nil, "", err
		}
		return store, backend, nil
	case "qdrant":
		store, err := rag.NewQdrantStore(&rag.QdrantConfig{
			Host:     envOr("QDRANT_HOST", "localhost"),
			Port:     envInt("QDRANT_PORT", 6334),
			APIKey:   os.Getenv("QDRANT_API_KEY"),
			UseTLS:   os.Getenv("QDRANT_TLS") == "true",
			Distance: distance,
		})
		if err != nil {
			return nil, "", err
		}
		return store, backend, nil
	default:
		return nil, "", fmt.Errorf("unknown STORE_BACKEND %q: valid values are postgres, qdrant", backend)
	}
}

// openPGStore connects to DATABASE_URL.
func openPGStore(ctx context.Context) (*rag.PGStore, error) {
	db, err := rag.OpenDB(ctx, rag.PGConfig{
		DSN:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    5,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return rag.NewPGStore(db), nil
}

// buildPingers returns the readiness probes for the store and the LLM backend.
func buildPingers(a *app) []server.Pinger {
	return []server.Pinger{
		server.NewStorePinger(a.store, a.storeName),
		server.NewLLMPinger(a.answerModel, provider.NewHealthCheck(a.providerCfg), string(a.providerCfg.Backend)),
	}
}

// openHistory opens the run log. SITREP_HISTORY_DB overrides the default path
// (~/.sitrep/history.db); "disabled" turns it off. Failures disable history
// rather than the command.
func openHistory(log *slog.Logger) (history.Log, func()) {
	path := os.Getenv("SITREP_HISTORY_DB")
	if path == "disabled" {
		log.Info("history: disabled via SITREP_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if path == "" {
		var err error
		path, err = history.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	h, err := history.Open(path)
	if err != nil {
		log.Warn("history: failed to open log, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: log opened", slog.String("path", path))
	return h, func() { _ = h.Close() }
}

// setupTracing registers Langfuse as a global eino callback when configured.
// The returned function flushes pending traces.
func setupTracing(log *slog.Logger) func() {
	handler, flush, ok := tracing.Setup()
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
