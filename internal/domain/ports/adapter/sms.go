package adapter

import "context"

// SendResult carries the provider's acknowledgement of an accepted message.
type SendResult struct {
	ProviderMessageID string
}

// SMSProviderAdapter abstracts the SMS carrier. Implementations classify
// failures into *model.DeliveryError at this boundary so downstream queue
// logic never inspects raw transport errors.
type SMSProviderAdapter interface {
	Send(ctx context.Context, to, body string) (SendResult, error)
}
