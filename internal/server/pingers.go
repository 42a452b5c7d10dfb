package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/sitrep-go/internal/provider"
)

// LLMPinger probes the completion backend. It satisfies the Pinger interface
// and is used by GET /api/ready.
type LLMPinger struct {
	// model is probed with a one-token Generate call when no HTTP health
	// check exists for the backend.
	model model.BaseChatModel
	// healthCheck is the zero-token probe; nil for bedrock and gemini.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "openai").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend. The HTTP health check is preferred; the
// Generate fallback consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return fmt.Errorf("%s: no probe configured", p.name)
	}

	slog.Warn("pinger: falling back to Generate-based health check, tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// storePinger is the subset of rag.VectorStore needed for readiness.
type storePinger interface {
	Ping(ctx context.Context) error
}

// StorePinger probes the vector store (PostgreSQL or Qdrant).
type StorePinger struct {
	store storePinger
	name  string
}

// NewStorePinger constructs a StorePinger labelled name.
func NewStorePinger(store storePinger, name string) *StorePinger {
	return &StorePinger{store: store, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping delegates to the store.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
