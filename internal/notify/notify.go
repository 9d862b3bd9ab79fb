// Package notify delivers scheduling lifecycle events to the external
// notification sink. The engine records events into a persisted outbox as
// part of handling a request; delivery happens here, asynchronously, so a
// slow or failing sink can never fail or roll back a booking.
package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// Sink receives lifecycle events. Delivery is best effort; a returned error
// leaves the event in the outbox for a later attempt.
type Sink interface {
	Notify(ctx context.Context, ev scheduling.EventLog) error
}

// StreamSink publishes events onto a Redis stream consumed by the
// notification service.
type StreamSink struct {
	client *redis.Client
	stream string
}

func NewStreamSink(client *redis.Client, stream string) *StreamSink {
	return &StreamSink{client: client, stream: stream}
}

func (s *StreamSink) Notify(ctx context.Context, ev scheduling.EventLog) error {
	values := map[string]any{
		"event_type": ev.EventType,
		"created_at": ev.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ev.AppointmentID != nil {
		values["appointment_id"] = ev.AppointmentID.String()
	}
	if len(ev.Payload) > 0 {
		values["payload"] = string(ev.Payload)
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Err()
}

// LogSink writes events to the log instead of a broker. Used in dev when no
// notification service is running.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "notify").Logger()}
}

func (s *LogSink) Notify(_ context.Context, ev scheduling.EventLog) error {
	e := s.log.Info().Str("event_type", ev.EventType)
	if ev.AppointmentID != nil {
		e = e.Str("appointment_id", ev.AppointmentID.String())
	}
	e.RawJSON("payload", ev.Payload).Msg("notification")
	return nil
}
