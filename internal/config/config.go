// Package config provides layered configuration for sitrep.
// Configuration is resolved with the precedence: defaults → .env file →
// YAML file → process environment. Environment variables always win, so a
// deployment that only sets env vars is unaffected by either file.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. SITREP_CONFIG environment variable
//  3. ~/.sitrep/config.yaml
//  4. ./sitrep.yaml
//
// The .env file (./.env unless SITREP_DOTENV points elsewhere) is read with
// godotenv and, like the YAML file, never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Database configures the PostgreSQL/pgvector connection.
	Database DatabaseConfig `yaml:"database"`

	// Store selects and tunes the vector store used for retrieval.
	Store StoreConfig `yaml:"store"`

	// Qdrant configures the optional Qdrant vector store.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures the query history log.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the expected embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL DSN. Prefer env var DATABASE_URL.
	URL string `yaml:"url"`
	// MaxOpenConns caps the connection pool size.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// StoreConfig selects the retrieval backend and the target table.
type StoreConfig struct {
	// Backend is postgres (default) or qdrant.
	Backend string `yaml:"backend"`
	// Table is the incident report table (or Qdrant collection).
	Table string `yaml:"table"`
	// EmbeddingColumn is the pgvector column searched by distance.
	EmbeddingColumn string `yaml:"embedding_column"`
	// Distance is cosine, l2 or inner.
	Distance string `yaml:"distance"`
	// TopK is the number of records retrieved per query.
	TopK int `yaml:"top_k"`
	// MaxContextTokens caps the retrieved data sent to the answer model.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// SystemInstruction replaces the built-in analyst instruction. A leading
	// "@" names a file to read it from.
	SystemInstruction string `yaml:"system_instruction"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit is the sustained per-IP request rate on /api/query.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst on /api/query.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds query history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"DATABASE_URL", func(c *Config) string { return c.Database.URL }},
	{"DATABASE_MAX_OPEN_CONNS", func(c *Config) string { return intStr(c.Database.MaxOpenConns) }},
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"SITREP_TABLE", func(c *Config) string { return c.Store.Table }},
	{"SITREP_EMBEDDING_COLUMN", func(c *Config) string { return c.Store.EmbeddingColumn }},
	{"SITREP_DISTANCE", func(c *Config) string { return c.Store.Distance }},
	{"SITREP_TOP_K", func(c *Config) string { return intStr(c.Store.TopK) }},
	{"SITREP_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Store.MaxContextTokens) }},
	{"SITREP_SYSTEM_INSTRUCTION", func(c *Config) string { return c.Store.SystemInstruction }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SITREP_HOST", func(c *Config) string { return c.Server.Host }},
	{"SITREP_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"SITREP_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"SITREP_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"SITREP_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv reads KEY=VALUE pairs from the .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error. Returns the path that was loaded, or "".
func LoadDotEnv(log *slog.Logger) (string, error) {
	path := os.Getenv("SITREP_DOTENV")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("config: no .env file found", slog.String("path", path))
			return "", nil
		}
		return "", fmt.Errorf("config: stat %s: %w", path, err)
	}
	// godotenv.Load never overrides variables that are already present.
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Info("config: loaded .env file", slog.String("path", path))
	return path, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set: do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SITREP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".sitrep", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("sitrep.yaml"); err == nil {
		return "sitrep.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
