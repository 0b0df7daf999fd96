package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"lead-sms-pipeline/internal/domain"
	"lead-sms-pipeline/internal/domain/model"
	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/domain/ports/repository"
	"lead-sms-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// RetryEnqueuer is the slice of the retry queue the dispatch queue needs.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, job *model.DispatchJob, derr *model.DeliveryError)
}

// DispatchQueue is the primary bounded-concurrency worker pool. Workers pull
// outbound jobs, invoke the SMS provider within the per-job timeout, and
// route failures to the retry queue. There is no cross-job ordering
// guarantee; per-lead ordering is enforced upstream by the conversation
// use case, which serializes message handling per lead.
type DispatchQueue struct {
	jobs     chan *model.DispatchJob
	workers  int
	timeout  time.Duration
	provider adapter.SMSProviderAdapter
	breaker  *CircuitBreaker
	retry    RetryEnqueuer
	messages repository.MessageRepository
	sink     adapter.EventSink
	log      *zerolog.Logger

	wg     sync.WaitGroup
	quit   chan struct{}
	mu     sync.Mutex
	closed bool
}

func NewDispatchQueue(
	workers int,
	timeout time.Duration,
	provider adapter.SMSProviderAdapter,
	breaker *CircuitBreaker,
	retry RetryEnqueuer,
	messages repository.MessageRepository,
	sink adapter.EventSink,
	logger *zerolog.Logger,
) *DispatchQueue {
	if workers <= 0 {
		workers = 100
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	compLog := logger.With().Str("component", "DispatchQueue").Logger()
	return &DispatchQueue{
		jobs:     make(chan *model.DispatchJob, workers*4),
		quit:     make(chan struct{}),
		workers:  workers,
		timeout:  timeout,
		provider: provider,
		breaker:  breaker,
		retry:    retry,
		messages: messages,
		sink:     sink,
		log:      &compLog,
	}
}

var _ Submitter = (*DispatchQueue)(nil)

// Submit accepts a job for asynchronous delivery. It raises synchronously
// only for programmer errors (invalid payload) and saturation; provider
// failures are absorbed by the retry machinery and reported via events.
func (q *DispatchQueue) Submit(job *model.DispatchJob) error {
	if job == nil {
		return domain.ErrInvalidJob
	}
	if err := job.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.sink.Emit(context.Background(), adapter.Event{
			Name:   adapter.EventQueued,
			LeadID: job.LeadID,
			JobID:  job.ID,
			At:     time.Now(),
			Fields: map[string]interface{}{"attempt": job.Attempt},
		})
		return nil
	default:
		metrics.IncDispatch("rejected")
		return domain.ErrQueueFull
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (q *DispatchQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.quit:
					return
				case job := <-q.jobs:
					if job == nil {
						continue
					}
					q.process(ctx, job)
				}
			}
		}()
	}
	q.log.Info().Int("workers", q.workers).Dur("job_timeout", q.timeout).Msg("dispatch queue started")
}

// Stop closes the queue to new submissions and waits for in-flight jobs to
// complete or fail naturally. Queued-but-unstarted jobs are abandoned.
func (q *DispatchQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.quit)
	q.wg.Wait()
	q.log.Info().Msg("dispatch queue stopped")
}

func (q *DispatchQueue) process(ctx context.Context, job *model.DispatchJob) {
	// While open, jobs bypass the provider entirely; the synthetic error is
	// classified non-retryable and the retry queue defers the job without
	// consuming an attempt.
	if q.breaker.IsOpen() {
		metrics.IncDispatch("circuit_open")
		q.retry.Enqueue(ctx, job, model.NewDeliveryError(model.ErrCodeCircuitOpen, "circuit open; provider not consulted"))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, q.timeout)
	start := time.Now()
	res, err := q.provider.Send(sendCtx, job.To, job.Content)
	cancel()
	latency := time.Since(start)
	metrics.ObserveDispatchLatency(float64(latency.Milliseconds()))

	if err != nil {
		derr := classify(err)
		q.breaker.RecordFailure()
		metrics.IncDispatch("failed")
		q.markMessage(job, model.MessageStatusFailed, "")
		q.log.Warn().Str("job_id", job.ID).Str("lead_id", job.LeadID).
			Int("attempt", job.Attempt).Str("error_code", string(derr.Code)).
			Dur("latency", latency).Msg("delivery failed")
		q.sink.Emit(ctx, adapter.Event{
			Name:   adapter.EventFailed,
			LeadID: job.LeadID,
			JobID:  job.ID,
			At:     time.Now(),
			Fields: map[string]interface{}{
				"attempt":    job.Attempt,
				"error_code": string(derr.Code),
				"retryable":  derr.Retryable,
			},
		})
		q.retry.Enqueue(ctx, job, derr)
		return
	}

	q.breaker.RecordSuccess()
	metrics.IncDispatch("sent")
	q.markMessage(job, model.MessageStatusSent, res.ProviderMessageID)
	q.log.Info().Str("job_id", job.ID).Str("lead_id", job.LeadID).
		Str("provider_message_id", res.ProviderMessageID).Dur("latency", latency).
		Msg("delivered")
	q.sink.Emit(ctx, adapter.Event{
		Name:   adapter.EventSent,
		LeadID: job.LeadID,
		JobID:  job.ID,
		At:     time.Now(),
		Fields: map[string]interface{}{"provider_message_id": res.ProviderMessageID},
	})
	if job.Attempt > 0 {
		q.sink.Emit(ctx, adapter.Event{
			Name:   adapter.EventRetrySucceeded,
			LeadID: job.LeadID,
			JobID:  job.ID,
			At:     time.Now(),
			Fields: map[string]interface{}{"attempt": job.Attempt},
		})
	}
}

func (q *DispatchQueue) markMessage(job *model.DispatchJob, status model.MessageStatus, providerID string) {
	if q.messages == nil || job.MessageID == "" {
		return
	}
	// Status updates use a background context so shutdown doesn't lose the
	// final state of an in-flight job.
	if err := q.messages.UpdateStatus(context.Background(), job.MessageID, status, providerID); err != nil {
		q.log.Error().Err(err).Str("message_id", job.MessageID).Msg("failed to update message status")
	}
}

// classify maps a provider error to the closed DeliveryError set. Adapters
// classify at the boundary; anything unclassified is treated as retryable
// unknown, and context deadlines as timeouts.
func classify(err error) *model.DeliveryError {
	var derr *model.DeliveryError
	if errors.As(err, &derr) {
		return derr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewDeliveryError(model.ErrCodeTimeout, "delivery timed out")
	}
	return model.NewDeliveryError(model.ErrCodeUnknown, err.Error())
}
