package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
)

type failingStore struct {
	*eventlog.MemoryStore
}

func (failingStore) Append(context.Context, *eventlog.Event) (uint64, error) {
	return 0, errors.New("disk full")
}

func TestBus_EmitPersistsBeforeDispatch(t *testing.T) {
	store := eventlog.NewMemoryStore()
	bus := New(store)
	ctx := context.Background()

	var seenStats eventlog.Stats
	_, err := bus.Subscribe("vault.completed", func(ctx context.Context, e eventlog.Event) error {
		var err error
		seenStats, err = store.Stats(ctx)
		return err
	})
	require.NoError(t, err)

	event, err := bus.Emit(ctx, "vault.completed", map[string]any{"vault_id": "brand"}, eventlog.Metadata{})
	require.NoError(t, err)
	require.NotEmpty(t, event.EventID)
	require.NotEmpty(t, event.Metadata.CorrelationID)
	require.False(t, event.Timestamp.IsZero())
	require.Equal(t, uint64(1), event.SequenceNumber)
	require.Equal(t, 1, seenStats.TotalEvents)
}

func TestBus_DispatchOrder(t *testing.T) {
	bus := New(eventlog.NewMemoryStore())
	ctx := context.Background()

	var order []string
	record := func(name string) Handler {
		return func(context.Context, eventlog.Event) error {
			order = append(order, name)
			return nil
		}
	}
	_, err := bus.SubscribeAll(record("all"))
	require.NoError(t, err)
	_, err = bus.Subscribe("x", record("first"))
	require.NoError(t, err)
	_, err = bus.Subscribe("x", record("second"))
	require.NoError(t, err)
	_, err = bus.Subscribe("y", record("other"))
	require.NoError(t, err)

	_, err = bus.Emit(ctx, "x", nil, eventlog.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "all"}, order)
}

func TestBus_UnsubscribeAndOnce(t *testing.T) {
	bus := New(eventlog.NewMemoryStore())
	ctx := context.Background()

	var regular, once int
	unsub, err := bus.Subscribe("x", func(context.Context, eventlog.Event) error { regular++; return nil })
	require.NoError(t, err)
	_, err = bus.SubscribeOnce("x", func(context.Context, eventlog.Event) error { once++; return nil })
	require.NoError(t, err)

	_, err = bus.Emit(ctx, "x", nil, eventlog.Metadata{})
	require.NoError(t, err)
	_, err = bus.Emit(ctx, "x", nil, eventlog.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, regular)
	assert.Equal(t, 1, once)
	assert.Equal(t, 1, bus.SubscriberCount("x"))

	unsub()
	_, err = bus.Emit(ctx, "x", nil, eventlog.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, regular)
	assert.Equal(t, 0, bus.SubscriberCount("x"))
}

func TestBus_SubscriberCapacity(t *testing.T) {
	bus := New(eventlog.NewMemoryStore(), WithSubscriberCapacity(2))
	noop := func(context.Context, eventlog.Event) error { return nil }

	_, err := bus.Subscribe("x", noop)
	require.NoError(t, err)
	_, err = bus.Subscribe("x", noop)
	require.NoError(t, err)
	_, err = bus.Subscribe("x", noop)
	require.ErrorIs(t, err, ErrSubscriberCapacity)

	_, err = bus.Subscribe("y", noop)
	require.NoError(t, err, "capacity is per channel")
}

func TestBus_FailingHandlersDoNotStopDispatch(t *testing.T) {
	store := eventlog.NewMemoryStore()
	bus := New(store)
	ctx := context.Background()
	boom := errors.New("boom")

	var reached bool
	_, err := bus.Subscribe("x", func(context.Context, eventlog.Event) error { return boom })
	require.NoError(t, err)
	_, err = bus.Subscribe("x", func(context.Context, eventlog.Event) error { panic("kaboom") })
	require.NoError(t, err)
	_, err = bus.SubscribeAll(func(context.Context, eventlog.Event) error { reached = true; return nil })
	require.NoError(t, err)

	event, err := bus.Emit(ctx, "x", nil, eventlog.Metadata{})
	require.Error(t, err)
	require.NotNil(t, event, "event is returned even when handlers fail")
	assert.True(t, reached)
	assert.ErrorIs(t, err, boom)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Len(t, dispatchErr.Failures, 2)
	assert.Contains(t, dispatchErr.Error(), "kaboom")

	stored, err := store.FindByType(ctx, "x", eventlog.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestBus_PersistenceErrorAbortsDispatch(t *testing.T) {
	bus := New(failingStore{eventlog.NewMemoryStore()})
	called := false
	_, err := bus.Subscribe("x", func(context.Context, eventlog.Event) error { called = true; return nil })
	require.NoError(t, err)

	event, err := bus.Emit(context.Background(), "x", nil, eventlog.Metadata{})
	require.Error(t, err)
	assert.Nil(t, event)
	assert.False(t, called)
}

func TestBus_FollowOnEventsKeepCausalChain(t *testing.T) {
	store := eventlog.NewMemoryStore()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bus := New(store, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, err := bus.Subscribe("vault.completed", func(ctx context.Context, e eventlog.Event) error {
		_, err := bus.Emit(ctx, "vault.analyzed", map[string]any{"vault_id": e.Payload["vault_id"]}, CausedBy(e))
		return err
	})
	require.NoError(t, err)

	root, err := bus.Emit(ctx, "vault.completed", map[string]any{"vault_id": "brand"}, eventlog.Metadata{UserID: "ana", WorkspaceID: "loja-a"})
	require.NoError(t, err)

	chain, err := store.FindByCorrelation(ctx, root.Metadata.CorrelationID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.True(t, chain[0].IsRoot())
	assert.Equal(t, root.EventID, chain[1].Metadata.CausationID)
	assert.Equal(t, "ana", chain[1].Metadata.UserID)
	assert.Equal(t, "loja-a", chain[1].Metadata.WorkspaceID)
	assert.Equal(t, fixed, chain[1].Timestamp)
}
