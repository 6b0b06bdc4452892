// Package llmutils talks to the LLM provider: client interfaces, the
// persona prompt builder, and the answer pipeline with its quality
// gate. Everything here is provider-shaped but store-free, so tests
// run against small fakes.
package llmutils

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/bizbot-il/bizbot/config"
)

// LLMClient defines the interface for chat-completion calls.
// This allows for easy mocking and testing.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EmbeddingClient defines the interface for embedding calls.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// NewOpenAIClient builds the provider client from config. The one
// client satisfies both LLMClient and EmbeddingClient.
func NewOpenAIClient(cfg config.LLMConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
