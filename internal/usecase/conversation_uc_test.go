package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lead-sms-pipeline/internal/config"
	"lead-sms-pipeline/internal/domain"
	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/logging"

	"github.com/rs/zerolog"
)

// ---- Shared fakes ----

func testLogger() *zerolog.Logger {
	return logging.New(config.LogConfig{Level: "error", Format: "console"}, true)
}

type memConvRepo struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{convs: map[string]*model.Conversation{}}
}

func (m *memConvRepo) Save(_ context.Context, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[c.LeadID] = c
	return nil
}

func (m *memConvRepo) FindByLead(_ context.Context, leadID string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[leadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memConvRepo) AppendTurn(_ context.Context, _ string, _ model.Turn) error {
	// Conversation.Append already mutated the in-memory aggregate.
	return nil
}

type memMsgRepo struct {
	mu    sync.Mutex
	saved []*model.Message
}

func (m *memMsgRepo) Save(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, msg)
	return nil
}

func (m *memMsgRepo) UpdateStatus(_ context.Context, _ string, _ model.MessageStatus, _ string) error {
	return nil
}

func (m *memMsgRepo) FindByLead(_ context.Context, _ string, _ int) ([]*model.Message, error) {
	return nil, nil
}

type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (string, error) {
	if l.busy {
		return "", domain.ErrLeadBusy
	}
	return "token", nil
}

func (l *fakeLocker) Unlock(_ context.Context, _, _ string) error { return nil }

type fakeLimiter struct {
	deny bool
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return !f.deny, nil
}

// scriptedResponder replays a fixed sequence of replies; the last entry
// repeats once the script runs out.
type scriptedResponder struct {
	mu      sync.Mutex
	calls   int
	replies []string
	metas   []model.AIResponseMetadata
	err     error
}

func (r *scriptedResponder) Generate(_ context.Context, _ *model.Conversation, _ PromptType) (string, model.AIResponseMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", model.FallbackMetadata(), r.err
	}
	i := r.calls - 1
	if i >= len(r.replies) {
		i = len(r.replies) - 1
	}
	return r.replies[i], r.metas[i], nil
}

func (r *scriptedResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordDispatcher struct {
	mu   sync.Mutex
	jobs []*model.DispatchJob
}

func (d *recordDispatcher) Submit(job *model.DispatchJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordDispatcher) submitted() []*model.DispatchJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.DispatchJob, len(d.jobs))
	copy(out, d.jobs)
	return out
}

type recordSink struct {
	mu     sync.Mutex
	events []adapter.Event
}

func (s *recordSink) Emit(_ context.Context, e adapter.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) count(name adapter.EventName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type ucFixture struct {
	uc        *conversationUC
	convs     *memConvRepo
	msgs      *memMsgRepo
	responder *scriptedResponder
	dispatch  *recordDispatcher
	sink      *recordSink
	locker    *fakeLocker
}

func newFixture(responder *scriptedResponder) *ucFixture {
	f := &ucFixture{
		convs:     newMemConvRepo(),
		msgs:      &memMsgRepo{},
		responder: responder,
		dispatch:  &recordDispatcher{},
		sink:      &recordSink{},
		locker:    &fakeLocker{},
	}
	f.uc = NewConversationUseCase(f.convs, f.msgs, responder, f.dispatch, f.locker, nil, f.sink,
		ConversationConfig{
			ConfidenceThreshold:    0.7,
			MaxConsecutiveFailures: 3,
			HandoffKeywords:        []string{"agent", "human", "stop"},
		}, testLogger())
	return f
}

// ---- Tests ----

func TestHandleInboundCreatesConversationAndReplies(t *testing.T) {
	f := newFixture(&scriptedResponder{
		replies: []string{"Sure, we open at 9am."},
		metas:   []model.AIResponseMetadata{{Confidence: 0.9, Intent: "hours"}},
	})

	if err := f.uc.HandleInbound(context.Background(), "lead-1", "+15550001111", "What time do you open?"); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	conv, err := f.convs.FindByLead(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.State != model.ConversationActive {
		t.Fatalf("state = %q, want active", conv.State)
	}
	if len(conv.History) != 2 || conv.History[0].Role != "user" || conv.History[1].Role != "assistant" {
		t.Fatalf("unexpected history: %+v", conv.History)
	}
	if conv.LowConfidenceStreak != 0 {
		t.Fatalf("streak = %d, want 0", conv.LowConfidenceStreak)
	}

	jobs := f.dispatch.submitted()
	if len(jobs) != 1 {
		t.Fatalf("dispatched %d jobs, want 1", len(jobs))
	}
	if jobs[0].Type != model.MessageTypeAI || jobs[0].Content != "Sure, we open at 9am." {
		t.Fatalf("unexpected job: %+v", jobs[0])
	}
	if jobs[0].To != "+15550001111" {
		t.Fatalf("job to = %q", jobs[0].To)
	}
}

func TestHandoffKeywordSkipsResponder(t *testing.T) {
	responder := &scriptedResponder{
		replies: []string{"unused"},
		metas:   []model.AIResponseMetadata{{Confidence: 0.9}},
	}
	f := newFixture(responder)

	if err := f.uc.HandleInbound(context.Background(), "lead-1", "+15550001111", "I want to talk to a HUMAN"); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if responder.callCount() != 0 {
		t.Fatal("responder invoked despite handoff keyword")
	}

	conv, _ := f.convs.FindByLead(context.Background(), "lead-1")
	if conv.State != model.ConversationHumanTakeover {
		t.Fatalf("state = %q, want human_takeover", conv.State)
	}
	if conv.TakeoverAt == nil {
		t.Fatal("TakeoverAt not set")
	}

	jobs := f.dispatch.submitted()
	if len(jobs) != 1 || jobs[0].Type != model.MessageTypeSystem {
		t.Fatalf("expected one SYSTEM dispatch, got %+v", jobs)
	}
	if f.sink.count(adapter.EventHandoffTriggered) != 1 {
		t.Fatal("no handoff:triggered event")
	}
}

func TestLowConfidenceStreakTriggersTakeoverAtThreshold(t *testing.T) {
	f := newFixture(&scriptedResponder{
		replies: []string{"hmm", "not sure", "maybe?"},
		metas: []model.AIResponseMetadata{
			{Confidence: 0.4}, {Confidence: 0.5}, {Confidence: 0.3},
		},
	})
	ctx := context.Background()

	for i, body := range []string{"first", "second", "third"} {
		if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", body); err != nil {
			t.Fatalf("inbound %d: %v", i, err)
		}
	}

	conv, _ := f.convs.FindByLead(ctx, "lead-1")
	if conv.State != model.ConversationHumanTakeover {
		t.Fatalf("state = %q, want human_takeover after third low-confidence reply", conv.State)
	}

	jobs := f.dispatch.submitted()
	if len(jobs) != 3 {
		t.Fatalf("dispatched %d jobs, want 3", len(jobs))
	}
	// First two low-confidence replies still go out; the third is suppressed
	// in favor of the handoff summary.
	if jobs[0].Type != model.MessageTypeAI || jobs[1].Type != model.MessageTypeAI {
		t.Fatalf("early replies should be AI messages: %+v", jobs)
	}
	if jobs[2].Type != model.MessageTypeSystem {
		t.Fatalf("takeover dispatch type = %q, want system", jobs[2].Type)
	}
	if f.sink.count(adapter.EventHandoffTriggered) != 1 {
		t.Fatal("expected exactly one handoff:triggered")
	}
}

func TestConfidentReplyResetsStreak(t *testing.T) {
	f := newFixture(&scriptedResponder{
		replies: []string{"hmm", "definitely 9am", "hmm", "hmm"},
		metas: []model.AIResponseMetadata{
			{Confidence: 0.4}, {Confidence: 0.95}, {Confidence: 0.4}, {Confidence: 0.4},
		},
	})
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c", "d"} {
		if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", body); err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}

	conv, _ := f.convs.FindByLead(ctx, "lead-1")
	if conv.State != model.ConversationActive {
		t.Fatalf("state = %q, want active (streak was reset mid-run)", conv.State)
	}
	if conv.LowConfidenceStreak != 2 {
		t.Fatalf("streak = %d, want 2", conv.LowConfidenceStreak)
	}
}

func TestRequiresHumanCountsTowardStreak(t *testing.T) {
	f := newFixture(&scriptedResponder{
		replies: []string{"r1", "r2", "r3"},
		metas: []model.AIResponseMetadata{
			{Confidence: 0.9, RequiresHumanIntervention: true},
			{Confidence: 0.9, RequiresHumanIntervention: true},
			{Confidence: 0.9, RequiresHumanIntervention: true},
		},
	})
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", body); err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}
	conv, _ := f.convs.FindByLead(ctx, "lead-1")
	if conv.State != model.ConversationHumanTakeover {
		t.Fatalf("state = %q, want human_takeover", conv.State)
	}
}

func TestInactiveStateRecordsWithoutResponding(t *testing.T) {
	responder := &scriptedResponder{replies: []string{"unused"}, metas: []model.AIResponseMetadata{{}}}
	f := newFixture(responder)
	ctx := context.Background()

	conv := model.NewConversation("lead-1", "+15550001111")
	conv.State = model.ConversationHumanTakeover
	_ = f.convs.Save(ctx, conv)

	if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", "still here?"); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if responder.callCount() != 0 {
		t.Fatal("responder invoked while human controls the thread")
	}
	if len(f.dispatch.submitted()) != 0 {
		t.Fatal("dispatched a message while human controls the thread")
	}
	if len(conv.History) != 1 || conv.History[0].Role != "user" {
		t.Fatalf("inbound not recorded: %+v", conv.History)
	}
}

func TestResponderErrorAbsorbedAsLowConfidence(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("provider down")}
	f := newFixture(responder)
	ctx := context.Background()

	if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", "hello"); err != nil {
		t.Fatalf("responder failure should be absorbed, got %v", err)
	}
	conv, _ := f.convs.FindByLead(ctx, "lead-1")
	if conv.LowConfidenceStreak != 1 {
		t.Fatalf("streak = %d, want 1", conv.LowConfidenceStreak)
	}
	if len(f.dispatch.submitted()) != 0 {
		t.Fatal("no reply should have been dispatched")
	}

	// Repeated failures still escalate to takeover.
	_ = f.uc.HandleInbound(ctx, "lead-1", "+15550001111", "hello?")
	_ = f.uc.HandleInbound(ctx, "lead-1", "+15550001111", "anyone?")
	conv, _ = f.convs.FindByLead(ctx, "lead-1")
	if conv.State != model.ConversationHumanTakeover {
		t.Fatalf("state = %q, want human_takeover after repeated failures", conv.State)
	}
}

func TestResumeAIControl(t *testing.T) {
	f := newFixture(&scriptedResponder{replies: []string{"ok"}, metas: []model.AIResponseMetadata{{Confidence: 0.9}}})
	ctx := context.Background()

	now := time.Now()
	conv := model.NewConversation("lead-1", "+15550001111")
	conv.State = model.ConversationHumanTakeover
	conv.LowConfidenceStreak = 3
	conv.TakeoverAt = &now
	_ = f.convs.Save(ctx, conv)

	if err := f.uc.ResumeAIControl(ctx, "lead-1"); err != nil {
		t.Fatalf("ResumeAIControl: %v", err)
	}
	if conv.State != model.ConversationActive || conv.LowConfidenceStreak != 0 || conv.TakeoverAt != nil {
		t.Fatalf("resume left conversation in %+v", conv)
	}
	if f.sink.count(adapter.EventHandoffResumed) != 1 {
		t.Fatal("no handoff:resumed event")
	}

	// Resuming an active conversation is an error.
	if err := f.uc.ResumeAIControl(ctx, "lead-1"); !errors.Is(err, domain.ErrNotHumanControlled) {
		t.Fatalf("got %v, want ErrNotHumanControlled", err)
	}
}

func TestPauseStopsAutomatedReplies(t *testing.T) {
	responder := &scriptedResponder{replies: []string{"unused"}, metas: []model.AIResponseMetadata{{Confidence: 0.9}}}
	f := newFixture(responder)
	ctx := context.Background()

	_ = f.convs.Save(ctx, model.NewConversation("lead-1", "+15550001111"))
	if err := f.uc.Pause(ctx, "lead-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	conv, _ := f.convs.FindByLead(ctx, "lead-1")
	if conv.State != model.ConversationPaused {
		t.Fatalf("state = %q, want paused", conv.State)
	}

	if err := f.uc.HandleInbound(ctx, "lead-1", "+15550001111", "hello"); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if responder.callCount() != 0 {
		t.Fatal("responder invoked while paused")
	}
}

func TestTakeOverIsIdempotent(t *testing.T) {
	f := newFixture(&scriptedResponder{replies: []string{"ok"}, metas: []model.AIResponseMetadata{{}}})
	ctx := context.Background()
	_ = f.convs.Save(ctx, model.NewConversation("lead-1", "+15550001111"))

	if err := f.uc.TakeOver(ctx, "lead-1", "escalation"); err != nil {
		t.Fatalf("TakeOver: %v", err)
	}
	if err := f.uc.TakeOver(ctx, "lead-1", "escalation"); err != nil {
		t.Fatalf("second TakeOver: %v", err)
	}
	if f.sink.count(adapter.EventHandoffTriggered) != 1 {
		t.Fatal("takeover should fire exactly once")
	}
	if len(f.dispatch.submitted()) != 1 {
		t.Fatal("handoff summary should dispatch exactly once")
	}
}

func TestLeadLockContention(t *testing.T) {
	f := newFixture(&scriptedResponder{replies: []string{"ok"}, metas: []model.AIResponseMetadata{{}}})
	f.locker.busy = true
	if err := f.uc.HandleInbound(context.Background(), "lead-1", "+15550001111", "hi"); !errors.Is(err, domain.ErrLeadBusy) {
		t.Fatalf("got %v, want ErrLeadBusy", err)
	}
}

func TestInboundRateLimitRecordsWithoutReply(t *testing.T) {
	responder := &scriptedResponder{replies: []string{"unused"}, metas: []model.AIResponseMetadata{{Confidence: 0.9}}}
	f := newFixture(responder)
	limited := NewConversationUseCase(f.convs, f.msgs, responder, f.dispatch, f.locker, &fakeLimiter{deny: true}, f.sink,
		ConversationConfig{ConfidenceThreshold: 0.7, MaxConsecutiveFailures: 3}, testLogger())

	if err := limited.HandleInbound(context.Background(), "lead-1", "+15550001111", "hi"); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if responder.callCount() != 0 {
		t.Fatal("responder invoked despite rate limit")
	}
	conv, _ := f.convs.FindByLead(context.Background(), "lead-1")
	if len(conv.History) != 1 {
		t.Fatalf("inbound not recorded: %+v", conv.History)
	}
}

func TestEmptyInboundRejected(t *testing.T) {
	f := newFixture(&scriptedResponder{replies: []string{"ok"}, metas: []model.AIResponseMetadata{{}}})
	if err := f.uc.HandleInbound(context.Background(), "lead-1", "+15550001111", "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}
