package queue

import (
	"context"
	"sync"
	"time"

	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/logging"

	"lead-sms-pipeline/internal/config"

	"github.com/rs/zerolog"
)

// ---- Shared fakes ----

func testLogger() *zerolog.Logger {
	return logging.New(config.LogConfig{Level: "error", Format: "console"}, true)
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

// waitFor polls until the named event has been seen n times or the timeout
// elapses. Retry scheduling is timer-driven, so tests wait rather than sync.
func (s *recordSink) waitFor(name adapter.EventName, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.count(name) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.count(name) >= n
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failures int // fail the first N calls
	err      error
}

func (p *fakeProvider) Send(_ context.Context, to, body string) (adapter.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures >= p.calls {
		if p.err != nil {
			return adapter.SendResult{}, p.err
		}
		return adapter.SendResult{}, model.NewDeliveryError(model.ErrCodeServerError, "boom")
	}
	return adapter.SendResult{ProviderMessageID: "SM123"}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type memMessageRepo struct {
	mu       sync.Mutex
	statuses map[string]model.MessageStatus
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{statuses: map[string]model.MessageStatus{}}
}

func (m *memMessageRepo) Save(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[msg.ID] = msg.Status
	return nil
}

func (m *memMessageRepo) UpdateStatus(_ context.Context, id string, status model.MessageStatus, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

func (m *memMessageRepo) FindByLead(_ context.Context, _ string, _ int) ([]*model.Message, error) {
	return nil, nil
}

func testJob(leadID string) *model.DispatchJob {
	j, _ := model.NewDispatchJob(leadID, "msg-"+leadID, "+15550001111", "hello", model.MessageTypeAI)
	return j
}
