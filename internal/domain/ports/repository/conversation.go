package repository

import (
	"context"

	"lead-sms-pipeline/internal/domain/model"
)

type ConversationRepository interface {
	Save(ctx context.Context, c *model.Conversation) error
	FindByLead(ctx context.Context, leadID string) (*model.Conversation, error)
	AppendTurn(ctx context.Context, leadID string, t model.Turn) error
}
