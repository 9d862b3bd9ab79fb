package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// recordingSink captures delivered events and can fail selected event types.
type recordingSink struct {
	delivered []scheduling.EventLog
	failType  string
}

func (s *recordingSink) Notify(_ context.Context, ev scheduling.EventLog) error {
	if s.failType != "" && ev.EventType == s.failType {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, ev)
	return nil
}

func insertEvent(t *testing.T, store *scheduling.MemStore, eventType string) {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.InsertEvent(context.Background(), scheduling.EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       []byte(`{"k":"v"}`),
	}))
}

func TestRunOnceDispatchesAndMarks(t *testing.T) {
	store := scheduling.NewMemStore()
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, 10, zerolog.Nop())

	insertEvent(t, store, scheduling.EventBookingCreated)
	insertEvent(t, store, scheduling.EventAppointmentConfirmed)

	sent, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, sink.delivered, 2)
	assert.Equal(t, scheduling.EventBookingCreated, sink.delivered[0].EventType)

	// Nothing left to dispatch.
	remaining, err := store.UndispatchedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	sent, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRunOnceRetriesFailedDeliveries(t *testing.T) {
	store := scheduling.NewMemStore()
	sink := &recordingSink{failType: scheduling.EventAppointmentCanceled}
	d := NewDispatcher(store, sink, 10, zerolog.Nop())

	insertEvent(t, store, scheduling.EventBookingCreated)
	insertEvent(t, store, scheduling.EventAppointmentCanceled)

	sent, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The failed event stays in the outbox.
	remaining, err := store.UndispatchedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, scheduling.EventAppointmentCanceled, remaining[0].EventType)

	// Once the sink recovers it goes through.
	sink.failType = ""
	sent, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	remaining, err = store.UndispatchedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunOnceHonorsBatchLimit(t *testing.T) {
	store := scheduling.NewMemStore()
	sink := &recordingSink{}
	d := NewDispatcher(store, sink, 2, zerolog.Nop())

	for i := 0; i < 5; i++ {
		insertEvent(t, store, scheduling.EventBookingCreated)
	}

	sent, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	remaining, err := store.UndispatchedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
