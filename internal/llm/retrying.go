package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// RetryingClient decorates a Client with WithRetry on every call.
type RetryingClient struct {
	inner  Client
	cfg    RetryConfig
	logger zerolog.Logger
}

func NewRetryingClient(inner Client, cfg RetryConfig, logger zerolog.Logger) *RetryingClient {
	return &RetryingClient{inner: inner, cfg: cfg.withDefaults(), logger: logger}
}

func (r *RetryingClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	out, err := WithRetry(ctx, r.cfg, func(ctx context.Context) (string, error) {
		return r.inner.Chat(ctx, messages, opts)
	})
	if err != nil {
		r.logger.Warn().Err(err).Int("max_attempts", r.cfg.MaxAttempts).Msg("chat call exhausted retries")
	}
	return out, err
}

func (r *RetryingClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out, err := WithRetry(ctx, r.cfg, func(ctx context.Context) ([][]float64, error) {
		return r.inner.Embed(ctx, texts)
	})
	if err != nil {
		r.logger.Warn().Err(err).Int("texts", len(texts)).Msg("embed call exhausted retries")
	}
	return out, err
}
