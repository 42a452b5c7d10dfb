// Package provider builds the eino chat models used as the remote completion
// service. The same backend is instantiated twice per process: once tuned for
// intent extraction (temperature 0, small output ceiling, structured JSON
// output where the backend supports it) and once for answer synthesis.
// Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock (via ark),
// Google Gemini.
package provider

import (
	"fmt"
	"strings"
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is the Ollama API base URL (e.g. http://localhost:11434).
	Host string
	// Model is the Ollama model tag (e.g. llama3).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	AWSRegion string
	ModelID   string
	// APIKey and BaseURL are forwarded to the ark runtime when set.
	APIKey  string
	BaseURL string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// Tuning holds the per-use sampling settings baked into a chat model.
type Tuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
	// JSONMode asks the backend for a single JSON object when it supports a
	// structured-output switch. Backends without one rely on the prompt.
	JSONMode bool
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning is applied to the constructed model.
	Tuning Tuning

	// Timeout bounds a single completion round trip at the transport level.
	// Zero leaves the backend default in place.
	Timeout time.Duration
}

// WithTuning returns a copy of c with its Tuning replaced.
func (c Config) WithTuning(t Tuning) *Config {
	c.Tuning = t
	return &c
}

// ModelName returns the model or deployment identifier of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}

// Validate reports the first missing setting for the selected backend, naming
// the env var the operator needs to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q: valid values: ollama, openai, azure, bedrock, gemini", c.Backend)
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those deployments reject the
// temperature parameter.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
