package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// Outbox is the slice of the repository the dispatcher needs.
type Outbox interface {
	UndispatchedEvents(ctx context.Context, limit int) ([]scheduling.EventLog, error)
	MarkEventDispatched(ctx context.Context, id int64, at time.Time) error
}

// Dispatcher drains the event outbox into a Sink. Events that fail to
// deliver stay undispatched and are retried on the next run, so delivery is
// at-least-once and consumers must dedupe on event ID.
type Dispatcher struct {
	outbox Outbox
	sink   Sink
	batch  int
	log    zerolog.Logger
}

func NewDispatcher(outbox Outbox, sink Sink, batch int, log zerolog.Logger) *Dispatcher {
	if batch <= 0 {
		batch = 100
	}
	return &Dispatcher{
		outbox: outbox,
		sink:   sink,
		batch:  batch,
		log:    log.With().Str("component", "notify-dispatcher").Logger(),
	}
}

// RunOnce dispatches up to one batch and reports how many events were
// delivered.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.UndispatchedEvents(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("load undispatched events: %w", err)
	}

	sent := 0
	for _, ev := range events {
		notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := d.sink.Notify(notifyCtx, ev)
		cancel()
		if err != nil {
			d.log.Warn().Err(err).
				Int64("event_id", ev.ID).
				Str("event_type", ev.EventType).
				Msg("notification delivery failed, will retry")
			continue
		}
		if err := d.outbox.MarkEventDispatched(ctx, ev.ID, time.Now().UTC()); err != nil {
			d.log.Warn().Err(err).
				Int64("event_id", ev.ID).
				Msg("failed to mark event dispatched")
			continue
		}
		sent++
	}
	return sent, nil
}
