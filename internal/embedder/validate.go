package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a startup pre-flight for cfg. It returns an error when the
// configuration cannot work and logs a warning when it probably will not
// match the stored vectors: a chat model named as EMBEDDING_MODEL, or a model
// other than the one the table was embedded with.
func Validate(cfg *Config, log *slog.Logger) error {
	if cfg.Backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Debug("embedder: EMBEDDING_PROVIDER not set, inheriting MODEL_PROVIDER",
			slog.String("backend", cfg.Backend),
		)
	}

	switch cfg.Backend {
	case "openai":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found: set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: no Azure API key found: set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: no Azure endpoint found: set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: no Ollama host found: set OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case "bedrock", "gemini":
		return fmt.Errorf("embedder: %s embedding is not supported: set EMBEDDING_PROVIDER to openai, azure or ollama", cfg.Backend)
	default:
		return fmt.Errorf("embedder: unknown backend %q", cfg.Backend)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use the model the stored vectors were built with, e.g. "+defaultOpenAIModel),
		)
	}
	if cfg.Backend != "ollama" && cfg.Model != defaultOpenAIModel {
		log.Warn("embedder: query model differs from the default stored-vector model",
			slog.String("model", cfg.Model),
			slog.String("default", defaultOpenAIModel),
		)
	}
	return nil
}
