package queue

import (
	"testing"
	"time"

	"lead-sms-pipeline/internal/domain/ports/adapter"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	sink := &recordSink{}
	b := NewCircuitBreaker(3, time.Minute, sink, testLogger())
	defer b.Stop()

	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Fatal("breaker open before threshold")
	}
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker closed at threshold")
	}
	if got := sink.count(adapter.EventCircuitOpen); got != 1 {
		t.Fatalf("expected 1 circuit:open event, got %d", got)
	}

	st := b.Snapshot()
	if !st.Open || st.ConsecutiveFailures < 3 {
		t.Fatalf("inconsistent snapshot: %+v", st)
	}
}

func TestBreakerSuccessResetsCounterOnly(t *testing.T) {
	sink := &recordSink{}
	b := NewCircuitBreaker(2, time.Minute, sink, testLogger())
	defer b.Stop()

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.IsOpen() {
		t.Fatal("success did not reset the failure count")
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker should be open")
	}
	// Success while open must not force-close; the timer alone closes it.
	b.RecordSuccess()
	if !b.IsOpen() {
		t.Fatal("success force-closed an open breaker")
	}
}

func TestBreakerTimerReset(t *testing.T) {
	sink := &recordSink{}
	b := NewCircuitBreaker(1, 50*time.Millisecond, sink, testLogger())
	defer b.Stop()

	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker should be open")
	}
	if !sink.waitFor(adapter.EventCircuitClose, 1, time.Second) {
		t.Fatal("no circuit:close event after reset timeout")
	}
	if b.IsOpen() {
		t.Fatal("breaker still open after reset timeout")
	}
	if st := b.Snapshot(); st.ConsecutiveFailures != 0 {
		t.Fatalf("failure count not reset: %+v", st)
	}
}
