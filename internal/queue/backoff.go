package queue

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"lead-sms-pipeline/internal/domain/model"
)

// jitterWidth is the uniform random jitter added to every computed delay
// to avoid synchronized retry storms.
const jitterWidth = time.Second

// BackoffPolicy computes the retry delay for a failed delivery attempt.
// The computation is pure apart from the seeded random source, so a fixed
// seed yields a fully deterministic delay sequence.
type BackoffPolicy struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBackoffPolicy(initial, max time.Duration, multiplier float64, seed int64) *BackoffPolicy {
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	if multiplier <= 1 {
		multiplier = 2.0
	}
	return &BackoffPolicy{
		initial:    initial,
		multiplier: multiplier,
		max:        max,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Delay returns initial * multiplier^attempt plus jitter in [0, 1s).
// Non-retryable errors get a doubled delay: retrying them is unlikely to
// succeed, but they are still retried rather than abandoned outright.
// The result is clamped to the configured maximum.
func (p *BackoffPolicy) Delay(attempt int, derr *model.DeliveryError) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.initial) * math.Pow(p.multiplier, float64(attempt))

	p.mu.Lock()
	jitter := time.Duration(p.rng.Int63n(int64(jitterWidth)))
	p.mu.Unlock()

	delay := time.Duration(base) + jitter
	if derr != nil && !derr.Retryable {
		delay *= 2
	}
	if delay > p.max || delay < 0 { // negative on float overflow
		delay = p.max
	}
	return delay
}

// Max returns the configured clamp, used by callers sizing timeouts.
func (p *BackoffPolicy) Max() time.Duration { return p.max }
