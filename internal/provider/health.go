package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthCheckConfig probes a backend without spending tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck issues a single GET and treats any 2xx as healthy.
type httpCheck struct {
	url    string
	header http.Header
	client *http.Client
}

// HealthCheck implements HealthCheckConfig.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a zero-token probe for backends that expose a cheap
// listing endpoint. It returns nil for backends without one; callers fall back
// to a minimal Generate call.
func NewHealthCheck(cfg *Config) HealthCheckConfig {
	client := &http.Client{Timeout: 5 * time.Second}
	switch cfg.Backend {
	case BackendOllama:
		host := cfg.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return &httpCheck{url: strings.TrimRight(host, "/") + "/api/tags", client: client}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
		return &httpCheck{url: strings.TrimRight(base, "/") + "/models", header: h, client: client}
	case BackendAzure:
		version := cfg.AzureOpenAI.APIVersion
		if version == "" {
			version = "2024-02-01"
		}
		h := http.Header{}
		h.Set("api-key", cfg.AzureOpenAI.APIKey)
		url := strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + version
		return &httpCheck{url: url, header: h, client: client}
	default:
		return nil
	}
}
