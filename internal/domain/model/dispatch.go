package model

import (
	"crypto/rand"
	"fmt"
	"time"

	"lead-sms-pipeline/internal/domain"

	"github.com/oklog/ulid/v2"
)

// ErrorCode is the closed set of delivery failure classifications.
// Classification happens exactly once, at the provider boundary; queues,
// backoff and the circuit breaker switch on the code and never re-inspect
// raw errors or HTTP statuses.
type ErrorCode string

const (
	ErrCodeTimeout        ErrorCode = "TIMEOUT"
	ErrCodeNetwork        ErrorCode = "NETWORK"
	ErrCodeServerError    ErrorCode = "SERVER_ERROR"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeAuth           ErrorCode = "AUTH"
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	ErrCodeUnknown        ErrorCode = "UNKNOWN"
)

// Retryable reports whether a delivery failure with this code is expected
// to succeed on a later attempt. Non-retryable codes are still retried,
// but with a doubled backoff (see queue.BackoffPolicy).
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeTimeout, ErrCodeNetwork, ErrCodeServerError, ErrCodeRateLimited, ErrCodeUnknown:
		return true
	default:
		return false
	}
}

// DeliveryError is attached to a job when dispatch fails.
type DeliveryError struct {
	Code       ErrorCode
	Message    string
	Retryable  bool
	OccurredAt time.Time
}

func NewDeliveryError(code ErrorCode, msg string) *DeliveryError {
	return &DeliveryError{
		Code:       code,
		Message:    msg,
		Retryable:  code.Retryable(),
		OccurredAt: time.Now(),
	}
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %s", e.Code, e.Message)
}

// DispatchJob is one outbound SMS delivery unit. The payload is immutable;
// the job is owned by exactly one queue at a time (dispatch or retry) and
// is destroyed on terminal success or when max attempts are exceeded.
type DispatchJob struct {
	ID        string
	LeadID    string
	MessageID string
	To        string
	Content   string
	Type      MessageType
	Attempt   int
	CreatedAt time.Time
}

func NewDispatchJob(leadID, messageID, to, content string, typ MessageType) (*DispatchJob, error) {
	j := &DispatchJob{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		LeadID:    leadID,
		MessageID: messageID,
		To:        to,
		Content:   content,
		Type:      typ,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *DispatchJob) Validate() error {
	if j.LeadID == "" || j.To == "" || j.Content == "" {
		return domain.ErrInvalidJob
	}
	return nil
}

// WithAttempt returns a copy of the job carrying the given attempt count.
func (j *DispatchJob) WithAttempt(n int) *DispatchJob {
	c := *j
	c.Attempt = n
	return &c
}
