package provider

import (
	"context"
	"encoding/json"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// jsonObjectFormat asks OpenAI-compatible endpoints for a single JSON object.
var jsonObjectFormat = &einoopenai.ChatCompletionResponseFormat{
	Type: einoopenai.ChatCompletionResponseFormatTypeJSONObject,
}

func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	host := cfg.Ollama.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	mc := &einoollama.ChatModelConfig{
		BaseURL: host,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.Tuning.JSONMode {
		mc.Format = json.RawMessage(`"json"`)
	}
	m, err := einoollama.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: ollama: %w", err)
	}
	return m, nil
}

func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	mc := &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Timeout:     cfg.Timeout,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	}
	if cfg.Tuning.JSONMode {
		mc.ResponseFormat = jsonObjectFormat
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: openai: %w", err)
	}
	return m, nil
}

// newAzure targets an Azure OpenAI deployment. Reasoning deployments reject
// the temperature parameter, so it is only sent to standard models.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	mc := &einoopenai.ChatModelConfig{
		Model:      cfg.AzureOpenAI.Deployment,
		APIKey:     cfg.AzureOpenAI.APIKey,
		BaseURL:    cfg.AzureOpenAI.Endpoint,
		ByAzure:    true,
		APIVersion: cfg.AzureOpenAI.APIVersion,
		Timeout:    cfg.Timeout,
		MaxTokens:  &maxTokens,
		// The default mapper strips dots and colons, which breaks deployment
		// names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !isAzureReasoningModel(cfg.AzureOpenAI.Deployment) {
		temp := cfg.Tuning.Temperature
		mc.Temperature = &temp
	}
	if cfg.Tuning.JSONMode {
		mc.ResponseFormat = jsonObjectFormat
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: azure: %w", err)
	}
	return m, nil
}

// newBedrock uses the ark runtime pointed at a Bedrock-compatible endpoint.
// AWS credentials resolve through the standard SDK chain when no API key is set.
func newBedrock(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	mc := &einoark.ChatModelConfig{
		Model:       cfg.Bedrock.ModelID,
		APIKey:      cfg.Bedrock.APIKey,
		BaseURL:     cfg.Bedrock.BaseURL,
		Region:      cfg.Bedrock.AWSRegion,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		mc.Timeout = &timeout
	}
	m, err := einoark.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: bedrock: %w", err)
	}
	return m, nil
}

func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini: %w", err)
	}
	return m, nil
}
