// File: internal/infra/events/log_sink.go
package events

import (
	"context"
	"time"

	"lead-sms-pipeline/internal/domain/ports/adapter"
	"lead-sms-pipeline/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.EventSink = (*LogSink)(nil)

// LogSink reports lifecycle events to the structured log and the event
// counter. Emit never blocks and never fails the caller; downstream
// observability consumes the log stream.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	compLog := logger.With().Str("component", "EventSink").Logger()
	return &LogSink{log: &compLog}
}

func (s *LogSink) Emit(ctx context.Context, e adapter.Event) {
	metrics.IncEvent(string(e.Name))
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ev := s.log.Info().Str("event", string(e.Name)).Time("at", e.At)
	if e.LeadID != "" {
		ev = ev.Str("lead_id", e.LeadID)
	}
	if e.JobID != "" {
		ev = ev.Str("job_id", e.JobID)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("lifecycle event")
}
