package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

// MessageType identifies who authored an outbound message.
type MessageType string

const (
	MessageTypeAI     MessageType = "ai"
	MessageTypeHuman  MessageType = "human"
	MessageTypeSystem MessageType = "system"
)

type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// Message is the persisted record of one SMS exchanged with a lead.
type Message struct {
	ID                string
	LeadID            string
	Direction         MessageDirection
	Type              MessageType
	Content           string
	Status            MessageStatus
	ProviderMessageID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewOutboundMessage(leadID, content string, typ MessageType) *Message {
	now := time.Now()
	return &Message{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Direction: MessageOutbound,
		Type:      typ,
		Content:   content,
		Status:    MessageStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewInboundMessage(leadID, content string) *Message {
	now := time.Now()
	return &Message{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Direction: MessageInbound,
		Type:      MessageTypeHuman,
		Content:   content,
		Status:    MessageStatusDelivered,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
