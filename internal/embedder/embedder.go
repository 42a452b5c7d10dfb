// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend (OpenAI, Azure OpenAI, Ollama) via plain HTTP.
package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/sitrep-go/internal/rag"
)

// Default embedding models per backend. The stored sitrep vectors were
// produced with text-embedding-ada-002, so query vectors must match it.
const (
	defaultOpenAIModel = "text-embedding-ada-002"
	defaultOllamaModel = "nomic-embed-text"

	// defaultOpenAIDimensions is the output dimension of text-embedding-ada-002
	// and text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768

	defaultAzureAPIVersion = "2024-02-01"
)

// Config selects and configures an embedding backend.
type Config struct {
	// Backend is one of ollama, openai, azure.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// APIKey authenticates against OpenAI or Azure.
	APIKey string
	// Endpoint is the API base URL or Ollama host.
	Endpoint string
	// Dimensions is the expected vector length. Zero means the model default.
	Dimensions int
	// APIVersion is the Azure OpenAI api-version query parameter.
	APIVersion string
}

// ExpectedDimensions returns the vector length the stored embeddings use.
func (c *Config) ExpectedDimensions() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	if c.Backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// ConfigFromEnv resolves an embedding Config using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: if unset, inherits MODEL_PROVIDER (default: openai)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL: overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY: overrides the inherited API key
//  5. EMBEDDING_ENDPOINT: overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS: overrides the expected dimensions
func ConfigFromEnv() *Config {
	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "openai")
	}
	cfg := &Config{
		Backend:    backend,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
	}

	switch backend {
	case "ollama":
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case "azure":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion)
	}
	return cfg
}

// New constructs the rag.Embedder described by cfg.
func New(cfg *Config) (rag.Embedder, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  cfg.Endpoint,
			Model: cfg.Model,
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/"),
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil

	case "bedrock", "gemini":
		return nil, fmt.Errorf("embedder: %s has no embedding backend here; set EMBEDDING_PROVIDER to openai, azure or ollama", cfg.Backend)

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q: valid values: ollama, openai, azure", cfg.Backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
