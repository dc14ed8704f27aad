package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

type stubStore struct {
	events []events.Event
	err    error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return fixed }}

	ctx := tenant.With(context.Background(), "outlet1")
	event, err := bus.Emit(ctx, events.TopicSaleCompleted, "INV-1", map[string]any{"billNumber": "INV-1"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicSaleCompleted, store.events[0].Topic)
	require.Equal(t, "outlet1", store.events[0].TenantID)
	require.Equal(t, fixed, store.events[0].OccurredAt)
	require.JSONEq(t, `{"billNumber":"INV-1"}`, string(store.events[0].Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "INV-1", decoded["billNumber"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "x", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleReturned, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleReturned, "x", json.RawMessage(`{bad`))
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicSaleReturned, "x", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{&captureNotifier{err: errors.New("down")}, &captureNotifier{}}}
	ev, err := bus.Emit(context.Background(), events.TopicSaleReturnUndone, "INV-2", nil)
	require.Error(t, err)
	require.Equal(t, "INV-2", ev.AggregateID)
	require.Len(t, store.events, 1)
}

func TestLogNotifierWritesTopic(t *testing.T) {
	var buf bytes.Buffer
	n := events.LogNotifier{Logger: zerolog.New(&buf)}
	require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicSaleCompleted, AggregateID: "INV-3", Payload: json.RawMessage(`{}`)}))
	require.Contains(t, buf.String(), `"topic":"sale.completed"`)
}
