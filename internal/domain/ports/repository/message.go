package repository

import (
	"context"

	"lead-sms-pipeline/internal/domain/model"
)

type MessageRepository interface {
	Save(ctx context.Context, m *model.Message) error
	UpdateStatus(ctx context.Context, id string, status model.MessageStatus, providerMessageID string) error
	FindByLead(ctx context.Context, leadID string, limit int) ([]*model.Message, error)
}
