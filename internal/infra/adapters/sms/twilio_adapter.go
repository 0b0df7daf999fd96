package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.SMSProviderAdapter = (*TwilioAdapter)(nil)

// TwilioAdapter implements adapter.SMSProviderAdapter against the Twilio
// Messages API. All failures are classified into *model.DeliveryError here,
// at the provider boundary.
type TwilioAdapter struct {
	accountSID string
	authToken  string
	from       string
	base       string // e.g., https://api.twilio.com
	client     *http.Client
}

func NewTwilioAdapter(accountSID, authToken, from string) (*TwilioAdapter, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio credentials empty")
	}
	if from == "" {
		return nil, errors.New("twilio from number empty")
	}
	return &TwilioAdapter{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		base:       "https://api.twilio.com",
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (t *TwilioAdapter) Send(ctx context.Context, to, body string) (adapter.SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.base, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return adapter.SendResult{}, model.NewDeliveryError(model.ErrCodeInvalidPayload, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return adapter.SendResult{}, model.NewDeliveryError(model.ErrCodeTimeout, "twilio request timed out")
		}
		return adapter.SendResult{}, model.NewDeliveryError(model.ErrCodeNetwork, err.Error())
	}
	defer resp.Body.Close()

	var payload struct {
		SID     string `json:"sid"`
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return adapter.SendResult{ProviderMessageID: payload.SID}, nil
	}
	return adapter.SendResult{}, classifyStatus(resp.StatusCode, payload.Code, payload.Message)
}

// classifyStatus maps Twilio HTTP responses to the closed error code set:
// 429 and 5xx are retryable, auth and validation 4xx are not.
func classifyStatus(status, twilioCode int, msg string) *model.DeliveryError {
	if msg == "" {
		msg = fmt.Sprintf("twilio http %d", status)
	}
	if twilioCode != 0 {
		msg = fmt.Sprintf("%s (twilio code %d)", msg, twilioCode)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return model.NewDeliveryError(model.ErrCodeRateLimited, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewDeliveryError(model.ErrCodeAuth, msg)
	case status >= 400 && status < 500:
		return model.NewDeliveryError(model.ErrCodeInvalidPayload, msg)
	case status >= 500:
		return model.NewDeliveryError(model.ErrCodeServerError, msg)
	default:
		return model.NewDeliveryError(model.ErrCodeUnknown, msg)
	}
}
