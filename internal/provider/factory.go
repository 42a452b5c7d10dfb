package provider

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"
)

// Sampling presets for the two completion call sites.
var (
	// IntentTuning is deterministic, short and structured.
	IntentTuning = Tuning{MaxTokens: 500, Temperature: 0, JSONMode: true}
	// AnswerTuning leaves a little room for phrasing and a longer answer.
	AnswerTuning = Tuning{MaxTokens: 1000, Temperature: 0.1}
)

// ConfigFromEnv resolves a provider Config from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER              = ollama | openai | azure | bedrock | gemini (default: openai)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: AWS_REGION (default: us-east-1), BEDROCK_MODEL_ID, BEDROCK_API_KEY, BEDROCK_BASE_URL
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-pro)
//
//	Shared:  MODEL_TIMEOUT_SECONDS (default: 60)
//
// Tuning is left zero; callers pick IntentTuning or AnswerTuning.
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendOpenAI))),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: getEnvOrDefault("AWS_REGION", "us-east-1"),
			ModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			APIKey:    os.Getenv("BEDROCK_API_KEY"),
			BaseURL:   os.Getenv("BEDROCK_BASE_URL"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Timeout: time.Duration(getEnvInt("MODEL_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	default:
		return newGemini(ctx, cfg)
	}
}

// NewPair builds the intent and answer models for cfg's backend.
func NewPair(ctx context.Context, cfg *Config) (intentModel, answerModel model.BaseChatModel, err error) {
	intentModel, err = New(ctx, cfg.WithTuning(IntentTuning))
	if err != nil {
		return nil, nil, err
	}
	answerModel, err = New(ctx, cfg.WithTuning(AnswerTuning))
	if err != nil {
		return nil, nil, err
	}
	return intentModel, answerModel, nil
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
