// Package eventbus is the publish-subscribe dispatcher in front of the event
// log. Every emission is persisted first and then fanned out synchronously,
// first to the subscribers of its type in registration order, then to the
// observe-all subscribers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
)

const defaultSubscriberCapacity = 100

// ErrSubscriberCapacity is returned when a channel already holds the maximum number of subscribers.
var ErrSubscriberCapacity = errors.New("eventbus: subscriber capacity reached")

// Handler reacts to a persisted event. Handlers may emit follow-on events.
type Handler func(ctx context.Context, event eventlog.Event) error

// Option customizes Bus construction.
type Option func(*Bus)

// WithSubscriberCapacity bounds the number of subscribers per channel.
func WithSubscriberCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger injects the logger used for handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

type subscription struct {
	id      uint64
	handler Handler
	once    bool
	fired   atomic.Bool
}

// Bus persists events to a Store and dispatches them to subscribers.
type Bus struct {
	store    eventlog.Store
	mu       sync.RWMutex
	byType   map[string][]*subscription
	all      []*subscription
	nextID   uint64
	capacity int
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a bus over the given store.
func New(store eventlog.Store, opts ...Option) *Bus {
	b := &Bus{
		store:    store,
		byType:   make(map[string][]*subscription),
		capacity: defaultSubscriberCapacity,
		logger:   slog.Default().With("component", "eventbus"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Store exposes the underlying log for queries and snapshots.
func (b *Bus) Store() eventlog.Store {
	return b.store
}

// Subscribe registers handler for one event type. The returned function unsubscribes.
func (b *Bus) Subscribe(eventType string, handler Handler) (func(), error) {
	return b.subscribe(eventType, handler, false)
}

// SubscribeOnce registers handler for the next event of the given type only.
func (b *Bus) SubscribeOnce(eventType string, handler Handler) (func(), error) {
	return b.subscribe(eventType, handler, true)
}

// SubscribeAll registers handler on the observe-all channel.
func (b *Bus) SubscribeAll(handler Handler) (func(), error) {
	return b.subscribe("", handler, false)
}

func (b *Bus) subscribe(eventType string, handler Handler, once bool) (func(), error) {
	if handler == nil {
		return nil, errors.New("eventbus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.all
	if eventType != "" {
		current = b.byType[eventType]
	}
	if len(current) >= b.capacity {
		return nil, fmt.Errorf("%w (%d) for %q", ErrSubscriberCapacity, b.capacity, channelName(eventType))
	}

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler, once: once}
	if eventType == "" {
		b.all = append(b.all, sub)
	} else {
		b.byType[eventType] = append(b.byType[eventType], sub)
	}
	return func() { b.remove(eventType, sub.id) }, nil
}

func (b *Bus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filter := func(subs []*subscription) []*subscription {
		out := make([]*subscription, 0, len(subs))
		for _, s := range subs {
			if s.id != id {
				out = append(out, s)
			}
		}
		return out
	}
	if eventType == "" {
		b.all = filter(b.all)
		return
	}
	b.byType[eventType] = filter(b.byType[eventType])
	if len(b.byType[eventType]) == 0 {
		delete(b.byType, eventType)
	}
}

// SubscriberCount returns the number of subscribers on a channel; "" is the observe-all channel.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if eventType == "" {
		return len(b.all)
	}
	return len(b.byType[eventType])
}

// Emit builds, persists and dispatches a new event.
func (b *Bus) Emit(ctx context.Context, eventType string, payload map[string]any, meta eventlog.Metadata) (*eventlog.Event, error) {
	return b.Publish(ctx, eventlog.Event{EventType: eventType, Payload: payload, Metadata: meta})
}

// Publish persists the event, assigning event_id, timestamp and correlation_id
// when absent, then notifies subscribers. A persistence error aborts dispatch.
// Handler failures do not undo the persisted event; they are returned as a
// *DispatchError together with the event.
func (b *Bus) Publish(ctx context.Context, event eventlog.Event) (*eventlog.Event, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	if event.Metadata.CorrelationID == "" {
		event.Metadata.CorrelationID = uuid.NewString()
	}

	if _, err := b.store.Append(ctx, &event); err != nil {
		return nil, fmt.Errorf("eventbus: persist %s: %w", event.EventType, err)
	}

	if err := b.dispatch(ctx, event); err != nil {
		return &event, err
	}
	return &event, nil
}

func (b *Bus) dispatch(ctx context.Context, event eventlog.Event) error {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.byType[event.EventType])+len(b.all))
	targets = append(targets, b.byType[event.EventType]...)
	typed := len(targets)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	var failures []HandlerFailure
	for i, sub := range targets {
		channel := event.EventType
		if i >= typed {
			channel = ""
		}
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(channel, sub.id)
		}
		if err := invoke(ctx, sub.handler, event); err != nil {
			b.logger.ErrorContext(ctx, "subscriber failed",
				"event_type", event.EventType,
				"event_id", event.EventID,
				"correlation_id", event.Metadata.CorrelationID,
				"channel", channelName(channel),
				"error", err,
			)
			failures = append(failures, HandlerFailure{Channel: channelName(channel), Err: err})
		}
	}
	if len(failures) > 0 {
		return &DispatchError{EventID: event.EventID, EventType: event.EventType, Failures: failures}
	}
	return nil
}

// invoke shields the dispatcher from panicking handlers.
func invoke(ctx context.Context, h Handler, event eventlog.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}

func channelName(eventType string) string {
	if eventType == "" {
		return "*"
	}
	return eventType
}

// CausedBy returns metadata for a follow-on event of parent: same correlation,
// session and workspace, causation pointing at parent.
func CausedBy(parent eventlog.Event) eventlog.Metadata {
	return eventlog.Metadata{
		CorrelationID: parent.Metadata.CorrelationID,
		CausationID:   parent.EventID,
		UserID:        parent.Metadata.UserID,
		SessionID:     parent.Metadata.SessionID,
		WorkspaceID:   parent.Metadata.WorkspaceID,
	}
}

// HandlerFailure is one failed subscriber invocation.
type HandlerFailure struct {
	Channel string
	Err     error
}

// DispatchError aggregates the subscriber failures of one emission. The event
// itself is already durable when this error is returned.
type DispatchError struct {
	EventID   string
	EventType string
	Failures  []HandlerFailure
}

func (e *DispatchError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %v", f.Channel, f.Err))
	}
	return fmt.Sprintf("eventbus: %d subscriber(s) failed for %s %s: %s",
		len(e.Failures), e.EventType, e.EventID, strings.Join(msgs, "; "))
}

// Unwrap exposes the handler errors to errors.Is and errors.As.
func (e *DispatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}
