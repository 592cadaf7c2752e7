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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to the OpenAI chat-completion and embedding APIs, or to
// any endpoint speaking the same wire format (Azure OpenAI, Ollama, vLLM)
// via BaseURL.
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	httpClient     *http.Client
}

// NewOpenAIClient builds a client with the given credentials. Empty baseURL
// falls back to the public OpenAI endpoint.
func NewOpenAIClient(apiKey, baseURL, model, embeddingModel string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-large"
	}
	return &OpenAIClient{
		apiKey:         apiKey,
		baseURL:        baseURL,
		model:          model,
		embeddingModel: embeddingModel,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
	}
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	payload := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, status, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return "", newProviderError("openai", status, err)
	}

	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", newProviderError("openai", status, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return "", newProviderError("openai", status, fmt.Errorf("%s", resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return "", newProviderError("openai", status, fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	payload := openAIEmbeddingRequest{Model: c.embeddingModel, Input: texts}

	body, status, err := c.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, newProviderError("openai", status, err)
	}

	var resp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newProviderError("openai", status, fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return nil, newProviderError("openai", status, fmt.Errorf("%s", resp.Error.Message))
	}
	if len(resp.Data) != len(texts) {
		return nil, newProviderError("openai", status,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, newProviderError("openai", status, fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// post issues the request and returns the raw body plus HTTP status. Non-2xx
// statuses are returned as errors with the status attached so the caller can
// classify them.
func (c *OpenAIClient) post(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
