package adapter

import (
	"context"
	"time"
)

type EventName string

const (
	EventQueued           EventName = "queued"
	EventSent             EventName = "sent"
	EventDelivered        EventName = "delivered"
	EventFailed           EventName = "failed"
	EventRetryQueued      EventName = "retry:queued"
	EventRetrySucceeded   EventName = "retry:succeeded"
	EventRetryFailed      EventName = "retry:failed"
	EventRetryMaxExceeded EventName = "retry:max-exceeded"
	EventCircuitOpen      EventName = "circuit:open"
	EventCircuitClose     EventName = "circuit:close"
	EventHandoffTriggered EventName = "handoff:triggered"
	EventHandoffResumed   EventName = "handoff:resumed"
)

// Event is one lifecycle notification.
type Event struct {
	Name   EventName
	LeadID string
	JobID  string
	Fields map[string]interface{}
	At     time.Time
}

// EventSink receives lifecycle events. Emit is fire-and-forget: it must
// never block or fail the caller.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}
