package queue

import (
	"context"
	"sync"
	"time"

	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Submitter is the slice of the dispatch queue the retry queue needs.
type Submitter interface {
	Submit(job *model.DispatchJob) error
}

// RetryQueue holds failed delivery jobs and re-submits them to the dispatch
// queue after a backoff-computed delay. Scheduling is in-process: pending
// timers are lost on a crash, and Stop drains them with a retry:failed event
// per job so operators can re-drive deliveries from the event stream.
type RetryQueue struct {
	policy      *BackoffPolicy
	breaker     *CircuitBreaker
	maxAttempts int
	sink        adapter.EventSink
	log         *zerolog.Logger

	mu       sync.Mutex
	dispatch Submitter
	pending  map[string]*retryEntry
	closed   bool
}

type retryEntry struct {
	job   *model.DispatchJob
	timer *time.Timer
}

func NewRetryQueue(policy *BackoffPolicy, breaker *CircuitBreaker, maxAttempts int, sink adapter.EventSink, logger *zerolog.Logger) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	compLog := logger.With().Str("component", "RetryQueue").Logger()
	return &RetryQueue{
		policy:      policy,
		breaker:     breaker,
		maxAttempts: maxAttempts,
		sink:        sink,
		log:         &compLog,
		pending:     map[string]*retryEntry{},
	}
}

// Bind wires the dispatch queue after construction; the two queues
// reference each other, so one side has to be bound late.
func (q *RetryQueue) Bind(d Submitter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatch = d
}

// Enqueue accepts a failed job together with its classified error.
//
// Jobs that have used up every attempt are dropped with retry:max-exceeded.
// While the breaker is open the job never reached the provider, so it is
// deferred for the breaker's reset timeout without consuming an attempt.
// Otherwise the job is rescheduled after the backoff delay with an
// incremented attempt count.
func (q *RetryQueue) Enqueue(ctx context.Context, job *model.DispatchJob, derr *model.DeliveryError) {
	if job.Attempt >= q.maxAttempts {
		metrics.IncRetry("max_exceeded")
		q.log.Error().Str("job_id", job.ID).Str("lead_id", job.LeadID).
			Int("attempt", job.Attempt).Str("error_code", string(derr.Code)).
			Msg("max retries exceeded; dropping job")
		q.sink.Emit(ctx, adapter.Event{
			Name:   adapter.EventRetryMaxExceeded,
			LeadID: job.LeadID,
			JobID:  job.ID,
			At:     time.Now(),
			Fields: map[string]interface{}{
				"attempt":    job.Attempt,
				"error_code": string(derr.Code),
			},
		})
		return
	}

	if q.breaker.IsOpen() {
		// Not an attempt-consuming failure: defer until the breaker is
		// expected to have closed again.
		q.schedule(ctx, job, q.breaker.ResetTimeout(), derr, true)
		return
	}

	next := job.WithAttempt(job.Attempt + 1)
	q.schedule(ctx, next, q.policy.Delay(job.Attempt, derr), derr, false)
}

func (q *RetryQueue) schedule(ctx context.Context, job *model.DispatchJob, delay time.Duration, derr *model.DeliveryError, deferred bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.emitFailed(ctx, job, "queue stopped")
		return
	}
	entry := &retryEntry{job: job}
	entry.timer = time.AfterFunc(delay, func() { q.resubmit(job) })
	q.pending[job.ID] = entry
	q.mu.Unlock()

	kind := "queued"
	if deferred {
		kind = "deferred"
	}
	metrics.IncRetry(kind)
	q.log.Info().Str("job_id", job.ID).Str("lead_id", job.LeadID).
		Int("attempt", job.Attempt).Dur("delay", delay).Bool("deferred", deferred).
		Msg("retry scheduled")
	q.sink.Emit(ctx, adapter.Event{
		Name:   adapter.EventRetryQueued,
		LeadID: job.LeadID,
		JobID:  job.ID,
		At:     time.Now(),
		Fields: map[string]interface{}{
			"attempt":      job.Attempt,
			"delay_ms":     delay.Milliseconds(),
			"error_code":   string(derr.Code),
			"circuit_open": deferred,
		},
	})
}

func (q *RetryQueue) resubmit(job *model.DispatchJob) {
	q.mu.Lock()
	delete(q.pending, job.ID)
	closed := q.closed
	dispatch := q.dispatch
	q.mu.Unlock()

	if closed || dispatch == nil {
		q.emitFailed(context.Background(), job, "queue stopped")
		return
	}
	if err := dispatch.Submit(job); err != nil {
		q.emitFailed(context.Background(), job, err.Error())
		return
	}
	metrics.IncRetry("resubmitted")
}

func (q *RetryQueue) emitFailed(ctx context.Context, job *model.DispatchJob, reason string) {
	metrics.IncRetry("dropped")
	q.log.Error().Str("job_id", job.ID).Str("lead_id", job.LeadID).
		Str("reason", reason).Msg("retry dropped")
	q.sink.Emit(ctx, adapter.Event{
		Name:   adapter.EventRetryFailed,
		LeadID: job.LeadID,
		JobID:  job.ID,
		At:     time.Now(),
		Fields: map[string]interface{}{"reason": reason},
	})
}

// PendingCount reports jobs waiting on a timer.
func (q *RetryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop cancels all pending timers and emits retry:failed for each drained
// job. Scheduled retries are otherwise in-memory only; durable re-queueing
// after a restart is the caller's responsibility.
func (q *RetryQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	drained := make([]*retryEntry, 0, len(q.pending))
	for id, e := range q.pending {
		e.timer.Stop()
		drained = append(drained, e)
		delete(q.pending, id)
	}
	q.mu.Unlock()

	for _, e := range drained {
		q.emitFailed(context.Background(), e.job, "shutdown drain")
	}
	q.log.Info().Int("drained", len(drained)).Msg("retry queue stopped")
}
