package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// AIServiceAdapter is the port for LLM completions.
type AIServiceAdapter interface {
	// Complete returns only the assistant text.
	Complete(ctx context.Context, model string, messages []Message) (string, error)

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
}
