package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidJob           = errors.New("dispatch job is missing required fields")
	ErrQueueFull            = errors.New("dispatch queue is full")
	ErrQueueClosed          = errors.New("dispatch queue is closed")
	ErrLeadBusy             = errors.New("lead conversation is locked by another operation")
	ErrNotHumanControlled   = errors.New("conversation is not under human control")
	ErrConversationInactive = errors.New("conversation is not active")
)
