// File: internal/usecase/conversation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lead-sms-pipeline/internal/domain"
	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ConversationUseCase = (*conversationUC)(nil)

// ConversationUseCase is the per-lead state machine deciding whether the AI
// responder or a human agent controls an SMS thread.
type ConversationUseCase interface {
	// HandleInbound processes one inbound message from a lead. The message
	// is always appended to history; whether it reaches the AI responder
	// depends on the conversation state.
	HandleInbound(ctx context.Context, leadID, from, body string) error

	// ResumeAIControl returns a PAUSED or HUMAN_TAKEOVER conversation to
	// ACTIVE and resets the low-confidence streak. Never automatic.
	ResumeAIControl(ctx context.Context, leadID string) error

	// Pause moves a conversation to PAUSED. Explicit external action only;
	// no code path enters PAUSED automatically.
	Pause(ctx context.Context, leadID string) error

	// TakeOver hands the thread to a human agent immediately.
	TakeOver(ctx context.Context, leadID, reason string) error
}

// Dispatcher is the slice of the dispatch queue this use case needs.
type Dispatcher interface {
	Submit(job *model.DispatchJob) error
}

// Locker serializes per-lead processing; one AI/dispatch operation per lead
// at a time. Backed by the Redis locker in production.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RateLimiter bounds inbound processing per lead.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ConversationConfig struct {
	ConfidenceThreshold    float64
	MaxConsecutiveFailures int
	HandoffKeywords        []string
	LockTTL                time.Duration
	InboundRateLimit       int
	InboundRateWindow      time.Duration
}

type conversationUC struct {
	convs     repository.ConversationRepository
	msgs      repository.MessageRepository
	responder ResponderUseCase
	dispatch  Dispatcher
	locker    Locker
	limiter   RateLimiter // optional
	sink      adapter.EventSink
	cfg       ConversationConfig
	log       *zerolog.Logger
}

func NewConversationUseCase(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	responder ResponderUseCase,
	dispatch Dispatcher,
	locker Locker,
	limiter RateLimiter,
	sink adapter.EventSink,
	cfg ConversationConfig,
	logger *zerolog.Logger,
) *conversationUC {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	compLog := logger.With().Str("component", "ConversationUC").Logger()
	return &conversationUC{
		convs:     convs,
		msgs:      msgs,
		responder: responder,
		dispatch:  dispatch,
		locker:    locker,
		limiter:   limiter,
		sink:      sink,
		cfg:       cfg,
		log:       &compLog,
	}
}

func lockKey(leadID string) string { return "lead_lock:" + leadID }

func (c *conversationUC) HandleInbound(ctx context.Context, leadID, from, body string) error {
	body = strings.TrimSpace(body)
	if leadID == "" || body == "" {
		return domain.ErrInvalidArgument
	}

	token, err := c.locker.TryLock(ctx, lockKey(leadID), c.cfg.LockTTL)
	if err != nil {
		return domain.ErrLeadBusy
	}
	defer func() { _ = c.locker.Unlock(ctx, lockKey(leadID), token) }()

	conv, err := c.convs.FindByLead(ctx, leadID)
	if errors.Is(err, domain.ErrNotFound) {
		conv = model.NewConversation(leadID, from)
		if err := c.convs.Save(ctx, conv); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	// Inbound messages are recorded regardless of state.
	turn := conv.Append("user", body)
	if err := c.convs.AppendTurn(ctx, leadID, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if err := c.msgs.Save(ctx, model.NewInboundMessage(leadID, body)); err != nil {
		c.log.Error().Err(err).Str("lead_id", leadID).Msg("failed to persist inbound message")
	}

	// In HUMAN_TAKEOVER or PAUSED the responder is never invoked.
	if conv.State != model.ConversationActive {
		return c.convs.Save(ctx, conv)
	}

	if kw, ok := c.matchHandoffKeyword(body); ok {
		return c.takeover(ctx, conv, "handoff keyword: "+kw, model.AIResponseMetadata{})
	}

	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, "inbound_rate:"+leadID, c.cfg.InboundRateLimit, c.cfg.InboundRateWindow)
		if err == nil && !allowed {
			c.log.Warn().Str("lead_id", leadID).Msg("inbound rate limit hit; recorded without response")
			return c.convs.Save(ctx, conv)
		}
	}

	reply, meta, err := c.responder.Generate(ctx, conv, PromptTypeReply)
	if err != nil {
		// Provider failure is absorbed as a low-confidence event; the lead
		// simply gets no automated reply for this message.
		c.log.Warn().Err(err).Str("lead_id", leadID).Msg("responder failed; counting as low confidence")
		conv.LowConfidenceStreak++
		if conv.LowConfidenceStreak >= c.cfg.MaxConsecutiveFailures {
			return c.takeover(ctx, conv, "consecutive low-confidence responses", meta)
		}
		return c.convs.Save(ctx, conv)
	}

	conv.LastConfidence = meta.Confidence
	if meta.RequiresHumanIntervention || meta.Confidence < c.cfg.ConfidenceThreshold {
		conv.LowConfidenceStreak++
	} else {
		conv.LowConfidenceStreak = 0
	}

	if conv.LowConfidenceStreak >= c.cfg.MaxConsecutiveFailures {
		// The low-confidence reply is suppressed; the agent gets the thread
		// and the lead gets the handoff flow instead.
		return c.takeover(ctx, conv, "consecutive low-confidence responses", meta)
	}

	turn = conv.Append("assistant", reply)
	if err := c.convs.AppendTurn(ctx, leadID, turn); err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	if err := c.convs.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return c.send(ctx, conv, reply, model.MessageTypeAI)
}

func (c *conversationUC) ResumeAIControl(ctx context.Context, leadID string) error {
	token, err := c.locker.TryLock(ctx, lockKey(leadID), c.cfg.LockTTL)
	if err != nil {
		return domain.ErrLeadBusy
	}
	defer func() { _ = c.locker.Unlock(ctx, lockKey(leadID), token) }()

	conv, err := c.convs.FindByLead(ctx, leadID)
	if err != nil {
		return err
	}
	if conv.State == model.ConversationActive {
		return domain.ErrNotHumanControlled
	}
	conv.State = model.ConversationActive
	conv.LowConfidenceStreak = 0
	conv.TakeoverAt = nil
	if err := c.convs.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	c.log.Info().Str("lead_id", leadID).Msg("AI control resumed")
	c.sink.Emit(ctx, adapter.Event{
		Name:   adapter.EventHandoffResumed,
		LeadID: leadID,
		At:     time.Now(),
	})
	return nil
}

func (c *conversationUC) Pause(ctx context.Context, leadID string) error {
	token, err := c.locker.TryLock(ctx, lockKey(leadID), c.cfg.LockTTL)
	if err != nil {
		return domain.ErrLeadBusy
	}
	defer func() { _ = c.locker.Unlock(ctx, lockKey(leadID), token) }()

	conv, err := c.convs.FindByLead(ctx, leadID)
	if err != nil {
		return err
	}
	conv.State = model.ConversationPaused
	return c.convs.Save(ctx, conv)
}

func (c *conversationUC) TakeOver(ctx context.Context, leadID, reason string) error {
	token, err := c.locker.TryLock(ctx, lockKey(leadID), c.cfg.LockTTL)
	if err != nil {
		return domain.ErrLeadBusy
	}
	defer func() { _ = c.locker.Unlock(ctx, lockKey(leadID), token) }()

	conv, err := c.convs.FindByLead(ctx, leadID)
	if err != nil {
		return err
	}
	if conv.State == model.ConversationHumanTakeover {
		return nil
	}
	if reason == "" {
		reason = "agent action"
	}
	return c.takeover(ctx, conv, reason, model.AIResponseMetadata{})
}

// takeover transitions to HUMAN_TAKEOVER and dispatches the structured
// handoff summary as a SYSTEM message, never an AI one.
func (c *conversationUC) takeover(ctx context.Context, conv *model.Conversation, reason string, meta model.AIResponseMetadata) error {
	now := time.Now()
	conv.State = model.ConversationHumanTakeover
	conv.TakeoverAt = &now

	summary := model.BuildHandoffSummary(conv, reason, meta)
	body := summary.Render()
	turn := conv.Append("system", body)
	if err := c.convs.AppendTurn(ctx, conv.LeadID, turn); err != nil {
		c.log.Error().Err(err).Str("lead_id", conv.LeadID).Msg("failed to record handoff turn")
	}
	if err := c.convs.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	c.log.Info().Str("lead_id", conv.LeadID).Str("reason", reason).
		Int("message_count", summary.MessageCount).
		Float64("last_confidence", summary.LastConfidence).
		Msg("human takeover triggered")
	c.sink.Emit(ctx, adapter.Event{
		Name:   adapter.EventHandoffTriggered,
		LeadID: conv.LeadID,
		At:     now,
		Fields: map[string]interface{}{
			"reason":          reason,
			"message_count":   summary.MessageCount,
			"last_confidence": summary.LastConfidence,
		},
	})
	return c.send(ctx, conv, body, model.MessageTypeSystem)
}

func (c *conversationUC) send(ctx context.Context, conv *model.Conversation, body string, typ model.MessageType) error {
	msg := model.NewOutboundMessage(conv.LeadID, body, typ)
	if err := c.msgs.Save(ctx, msg); err != nil {
		return fmt.Errorf("persist outbound message: %w", err)
	}
	job, err := model.NewDispatchJob(conv.LeadID, msg.ID, conv.Phone, body, typ)
	if err != nil {
		return err
	}
	if err := c.dispatch.Submit(job); err != nil {
		return fmt.Errorf("submit dispatch job: %w", err)
	}
	return nil
}

func (c *conversationUC) matchHandoffKeyword(body string) (string, bool) {
	lower := strings.ToLower(body)
	for _, kw := range c.cfg.HandoffKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
