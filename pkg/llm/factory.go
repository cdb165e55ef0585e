package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewChatClient builds the chat client for the configured provider.
// An empty provider means OpenAI-compatible.
func NewChatClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case ProviderOpenAI, "":
		return NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewEmbeddingClient builds the embedding client. Embeddings are an
// OpenAI-compatible surface, so this ignores the provider and always
// builds an OpenAI-compatible client against the given endpoint.
func NewEmbeddingClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return client, nil
}
