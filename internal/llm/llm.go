// Package llm provides a provider-agnostic gateway for chat completion and
// text embedding. Provider selection happens once at construction; callers
// only see the Client interface.
package llm

import "context"

// Message is a single entry in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options carries per-call generation parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the client's default model when set
}

// Client is the completion gateway. Both operations may suspend on network
// I/O and both consume provider quota. The client never retries on its own;
// use WithRetry when a caller wants retry semantics.
type Client interface {
	// Chat sends an ordered message list and returns the model's text.
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EstimateTokens gives a rough token count for cost logging. Four characters
// per token is close enough for English prose and the pipeline only needs an
// order-of-magnitude figure.
func EstimateTokens(text string) int {
	return len(text) / 4
}
