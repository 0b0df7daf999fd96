package sms

import (
	"context"

	"lead-sms-pipeline/internal/domain/ports/adapter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.SMSProviderAdapter = (*NoopSMS)(nil)

// NoopSMS logs instead of sending. Dev mode only.
type NoopSMS struct {
	log *zerolog.Logger
}

func NewNoopSMS(logger *zerolog.Logger) *NoopSMS {
	compLog := logger.With().Str("component", "NoopSMS").Logger()
	return &NoopSMS{log: &compLog}
}

func (n *NoopSMS) Send(ctx context.Context, to, body string) (adapter.SendResult, error) {
	id := "noop-" + uuid.NewString()
	n.log.Info().Str("to", to).Int("body_len", len(body)).Str("provider_message_id", id).Msg("noop send")
	return adapter.SendResult{ProviderMessageID: id}, nil
}
