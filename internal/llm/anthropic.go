package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient implements chat completion against the Anthropic Messages
// API. Anthropic exposes no embedding endpoint; the factory pairs this client
// with an embedding-capable one when the configured provider is "anthropic".
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey, baseURL, model string) *AnthropicClient {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000 // the Messages API requires max_tokens
	}

	// Anthropic takes the system prompt as a top-level field.
	payload := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			payload.System = m.Content
			continue
		}
		payload.Messages = append(payload.Messages, m)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", newProviderError("anthropic", 0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return "", newProviderError("anthropic", 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newProviderError("anthropic", 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newProviderError("anthropic", resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newProviderError("anthropic", resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 300)))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newProviderError("anthropic", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return "", newProviderError("anthropic", resp.StatusCode, fmt.Errorf("%s", parsed.Error.Message))
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", newProviderError("anthropic", resp.StatusCode, fmt.Errorf("no text content returned"))
}

// Embed always fails: the Messages API has no embedding support. The factory
// never routes embeddings here, but the method is required by the interface.
func (c *AnthropicClient) Embed(_ context.Context, _ []string) ([][]float64, error) {
	return nil, newProviderError("anthropic", 0, fmt.Errorf("embeddings not supported"))
}
