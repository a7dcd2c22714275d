// Package providers constructs the chat and embedding models used by
// the gateway and the knowledge base.
package providers

import (
	"context"
	"fmt"
	"os"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewChatModel creates an OpenAI-compatible chat model from specific configuration.
func NewChatModel(ctx context.Context, config *ChatModelConfig) (model.ToolCallingChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	modelName := config.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  config.APIKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
}

// CreateChatModel creates a chat model from environment variables,
// dispatching on MODEL_PROVIDER (openai-compatible by default, or
// "gemini").
//
// OpenAI-compatible providers read:
//   - API_KEY (required)
//   - BASE_URL (default: https://api.openai.com/v1)
//   - MODEL (default: gpt-4o-mini)
func CreateChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if os.Getenv("MODEL_PROVIDER") == "gemini" {
		return CreateGeminiModel(ctx)
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("API_KEY environment variable is required")
	}

	return NewChatModel(ctx, &ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("BASE_URL"),
		Model:   os.Getenv("MODEL"),
	})
}

// CreateGeminiModel creates a Google Gemini chat model from environment
// variables: GEMINI_API_KEY (required) and GEMINI_MODEL.
func CreateGeminiModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required when using gemini provider")
	}

	modelName := os.Getenv("GEMINI_MODEL")
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  modelName,
	})
}

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewEmbeddingModel creates an OpenAI-compatible embedding model from specific configuration.
func NewEmbeddingModel(ctx context.Context, config *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	modelName := config.Model
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}

	return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  config.APIKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
}

// CreateEmbeddingModel creates an OpenAI-compatible embedding model from
// environment variables: EMBEDDING_MODEL_API_KEY (falls back to
// API_KEY), EMBEDDING_MODEL_BASE_URL and EMBEDDING_MODEL.
func CreateEmbeddingModel(ctx context.Context) (einoEmbedding.Embedder, error) {
	apiKey := os.Getenv("EMBEDDING_MODEL_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("EMBEDDING_MODEL_API_KEY or API_KEY environment variable is required")
	}

	return NewEmbeddingModel(ctx, &EmbeddingConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("EMBEDDING_MODEL_BASE_URL"),
		Model:   os.Getenv("EMBEDDING_MODEL"),
	})
}
