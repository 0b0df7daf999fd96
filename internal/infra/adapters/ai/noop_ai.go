package ai

import (
	"context"
	"strings"

	"lead-sms-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAI)(nil)

// NoopAI returns canned responses. Dev mode only.
type NoopAI struct{}

func NewNoopAI() *NoopAI { return &NoopAI{} }

func (n *NoopAI) Complete(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	if len(messages) > 0 && strings.Contains(messages[len(messages)-1].Content, "strict JSON") {
		return `{"confidence": 0.9, "intent": "dev", "suggested_actions": [], "requires_human": false}`, nil
	}
	return "(dev) Thanks for your message, we'll be in touch shortly.", nil
}

func (n *NoopAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total, nil
}
