// File: internal/usecase/responder_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ResponderUseCase = (*responderUC)(nil)

// ResponderUseCase generates an outbound reply plus its metadata for a
// conversation. Provider failures surface as errors here; the conversation
// use case absorbs them as low-confidence events rather than hard failures.
type ResponderUseCase interface {
	Generate(ctx context.Context, conv *model.Conversation, promptType PromptType) (string, model.AIResponseMetadata, error)
}

// PromptCache caches constructed prompt strings under burst traffic. A nil
// cache is valid; caching is a local optimization, not a correctness need.
type PromptCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, prompt string)
}

type ResponderConfig struct {
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RetryBase         time.Duration
	HistoryCharBudget int
	MaxMessageLength  int
}

type responderUC struct {
	ai      adapter.AIServiceAdapter
	prompts PromptCache
	cfg     ResponderConfig
	log     *zerolog.Logger
}

func NewResponderUseCase(ai adapter.AIServiceAdapter, prompts PromptCache, cfg ResponderConfig, logger *zerolog.Logger) *responderUC {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.HistoryCharBudget <= 0 {
		cfg.HistoryCharBudget = 4000
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 1600
	}
	compLog := logger.With().Str("component", "ResponderUC").Logger()
	return &responderUC{ai: ai, prompts: prompts, cfg: cfg, log: &compLog}
}

func (r *responderUC) Generate(ctx context.Context, conv *model.Conversation, promptType PromptType) (string, model.AIResponseMetadata, error) {
	system := r.systemPrompt(ctx, conv, promptType)
	msgs := make([]adapter.Message, 0, len(conv.History)+1)
	msgs = append(msgs, adapter.Message{Role: "system", Content: system})
	msgs = append(msgs, historyWindow(conv, r.cfg.HistoryCharBudget)...)

	if n, err := r.ai.CountTokens(ctx, r.cfg.Model, msgs); err == nil {
		metrics.ObservePromptTokens(n)
	}

	reply, err := r.completeWithRetry(ctx, msgs)
	if err != nil {
		return "", model.FallbackMetadata(), fmt.Errorf("generate reply: %w", err)
	}

	reply = sanitize(reply, r.cfg.MaxMessageLength)
	meta := r.classify(ctx, conv, reply)
	metrics.ObserveConfidence(meta.Confidence)
	return reply, meta, nil
}

func (r *responderUC) systemPrompt(ctx context.Context, conv *model.Conversation, promptType PromptType) string {
	key := fmt.Sprintf("prompt:%s:%s:%d", conv.LeadID, promptType, len(conv.History))
	if r.prompts != nil {
		if p, ok := r.prompts.Get(ctx, key); ok {
			return p
		}
	}
	p := systemPromptFor(promptType, conv)
	if r.prompts != nil {
		r.prompts.Set(ctx, key, p)
	}
	return p
}

// completeWithRetry calls the provider with a bounded timeout and a small
// number of retries on plain exponential backoff (multiplier 2, no jitter).
// This is intentionally simpler than the dispatch backoff policy.
func (r *responderUC) completeWithRetry(ctx context.Context, msgs []adapter.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		start := time.Now()
		reply, err := r.ai.Complete(callCtx, r.cfg.Model, msgs)
		cancel()
		metrics.ObserveAICall("generate", int(time.Since(start).Milliseconds()), err == nil)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		r.log.Warn().Err(err).Int("attempt", attempt).Msg("ai completion failed")
	}
	return "", lastErr
}

// classify runs the secondary classification call. Any failure falls back
// to the conservative default rather than erroring: conversation continuity
// is favored over confidence-score correctness.
func (r *responderUC) classify(ctx context.Context, conv *model.Conversation, reply string) model.AIResponseMetadata {
	msgs := append(historyWindow(conv, r.cfg.HistoryCharBudget),
		adapter.Message{Role: "assistant", Content: reply},
		adapter.Message{Role: "user", Content: classifyPrompt},
	)
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	start := time.Now()
	raw, err := r.ai.Complete(callCtx, r.cfg.Model, msgs)
	cancel()
	metrics.ObserveAICall("classify", int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		metrics.IncClassifyFallback()
		r.log.Warn().Err(err).Str("lead_id", conv.LeadID).Msg("classification failed; using fallback metadata")
		return model.FallbackMetadata()
	}

	var parsed struct {
		Confidence       float64  `json:"confidence"`
		Intent           string   `json:"intent"`
		SuggestedActions []string `json:"suggested_actions"`
		RequiresHuman    bool     `json:"requires_human"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		metrics.IncClassifyFallback()
		r.log.Warn().Err(err).Str("lead_id", conv.LeadID).Msg("classification unparseable; using fallback metadata")
		return model.FallbackMetadata()
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return model.AIResponseMetadata{
		Confidence:                parsed.Confidence,
		Intent:                    parsed.Intent,
		SuggestedActions:          parsed.SuggestedActions,
		RequiresHumanIntervention: parsed.RequiresHuman,
	}
}

// extractJSON pulls the outermost JSON object out of a model reply that may
// be wrapped in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// sanitize strips non-printable characters, normalizes whitespace runs and
// hard-truncates to the provider's maximum message length.
func sanitize(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' {
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}
