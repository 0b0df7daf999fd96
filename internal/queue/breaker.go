package queue

import (
	"context"
	"sync"
	"time"

	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// BreakerState is a read-only snapshot of the breaker.
type BreakerState struct {
	Open                bool
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitBreaker tracks consecutive dispatch failures. It opens once the
// threshold is reached and closes again only when the reset timer elapses;
// there is no half-open probing state. One logical breaker exists per
// dispatch path and all mutations are serialized behind the mutex, since
// many workers report outcomes concurrently.
type CircuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration

	consecutiveFailures int
	open                bool
	openedAt            time.Time
	timer               *time.Timer

	sink adapter.EventSink
	log  *zerolog.Logger
}

func NewCircuitBreaker(threshold int, resetTimeout time.Duration, sink adapter.EventSink, logger *zerolog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	compLog := logger.With().Str("component", "CircuitBreaker").Logger()
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		sink:         sink,
		log:          &compLog,
	}
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached, scheduling the timer-driven reset.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	metrics.SetBreakerFailures(b.consecutiveFailures)
	if b.open || b.consecutiveFailures < b.threshold {
		return
	}

	b.open = true
	b.openedAt = time.Now()
	b.timer = time.AfterFunc(b.resetTimeout, b.reset)
	metrics.SetBreakerOpen(true)
	b.log.Warn().Int("consecutive_failures", b.consecutiveFailures).
		Dur("reset_timeout", b.resetTimeout).Msg("circuit opened")
	b.sink.Emit(context.Background(), adapter.Event{
		Name: adapter.EventCircuitOpen,
		At:   b.openedAt,
		Fields: map[string]interface{}{
			"consecutive_failures": b.consecutiveFailures,
		},
	})
}

// RecordSuccess resets the failure count. It does not force-close an open
// breaker; only the reset timer does that.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	metrics.SetBreakerFailures(0)
}

func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// ResetTimeout is exported for callers that defer work until the breaker
// is expected to be closed again.
func (b *CircuitBreaker) ResetTimeout() time.Duration { return b.resetTimeout }

func (b *CircuitBreaker) Snapshot() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Open:                b.open,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
	}
}

// Stop cancels a pending reset timer. For shutdown only.
func (b *CircuitBreaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *CircuitBreaker) reset() {
	b.mu.Lock()
	wasOpen := b.open
	b.open = false
	b.consecutiveFailures = 0
	b.timer = nil
	b.mu.Unlock()

	if !wasOpen {
		return
	}
	metrics.SetBreakerOpen(false)
	metrics.SetBreakerFailures(0)
	b.log.Info().Msg("circuit closed")
	b.sink.Emit(context.Background(), adapter.Event{
		Name: adapter.EventCircuitClose,
		At:   time.Now(),
	})
}
