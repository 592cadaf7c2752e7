package llm

import (
	"context"
	"fmt"
)

// ClientConfig is everything needed to construct a gateway. It is filled from
// the application config once at process start.
type ClientConfig struct {
	Provider       string // "openai" or "anthropic"
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string

	// EmbeddingAPIKey is used when the chat provider cannot embed
	// (anthropic); empty means reuse APIKey.
	EmbeddingAPIKey string
}

// NewClient resolves the provider once and returns a ready Client.
func NewClient(cfg ClientConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.EmbeddingModel), nil
	case "anthropic":
		embedKey := cfg.EmbeddingAPIKey
		if embedKey == "" {
			embedKey = cfg.APIKey
		}
		return &splitClient{
			chat:  NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model),
			embed: NewOpenAIClient(embedKey, "", "", cfg.EmbeddingModel),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// splitClient routes chat and embedding to different providers.
type splitClient struct {
	chat  Client
	embed Client
}

func (s *splitClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	return s.chat.Chat(ctx, messages, opts)
}

func (s *splitClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return s.embed.Embed(ctx, texts)
}
