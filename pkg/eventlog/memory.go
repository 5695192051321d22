package eventlog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process reference implementation. Durability across
// process restarts is not provided.
type MemoryStore struct {
	mu             sync.RWMutex
	events         []Event
	byCorrelation  map[string][]int
	snapshots      map[string]Snapshot
	sequenceNumber uint64
	now            func() time.Time
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make([]Event, 0),
		byCorrelation: make(map[string][]int),
		snapshots:     make(map[string]Snapshot),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ForWorkspace returns a view that only sees events of workspaceID.
func (s *MemoryStore) ForWorkspace(workspaceID string) Store {
	return &memoryWorkspace{store: s, workspace: workspaceID}
}

// Append adds an event, assigning the next sequence number.
func (s *MemoryStore) Append(ctx context.Context, event *Event) (uint64, error) {
	return s.append(event, "")
}

func (s *MemoryStore) append(event *Event, workspace string) (uint64, error) {
	if err := event.validate(); err != nil {
		return 0, err
	}
	if err := stampWorkspace(event, workspace); err != nil {
		return 0, err
	}
	payload, err := normalizePayload(event.Payload)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequenceNumber++
	event.Payload = payload
	event.SequenceNumber = s.sequenceNumber
	event.StoredAt = s.now()
	event.EntityType, event.EntityID = entityRef(payload)

	s.events = append(s.events, event.clone())
	idx := len(s.events) - 1
	cid := event.Metadata.CorrelationID
	s.byCorrelation[cid] = append(s.byCorrelation[cid], idx)

	return event.SequenceNumber, nil
}

// FindByType returns events of one type in ascending sequence order.
func (s *MemoryStore) FindByType(ctx context.Context, eventType string, opts QueryOptions) ([]Event, error) {
	return s.findByType(eventType, opts, ""), nil
}

func (s *MemoryStore) findByType(eventType string, opts QueryOptions, workspace string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if e.EventType != eventType || !visible(e, workspace) {
			continue
		}
		if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
			continue
		}
		out = append(out, e.clone())
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

// FindByCorrelation returns the causal chain of one workflow run.
func (s *MemoryStore) FindByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return s.findByCorrelation(correlationID, ""), nil
}

func (s *MemoryStore) findByCorrelation(correlationID, workspace string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.byCorrelation[correlationID]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		if visible(s.events[i], workspace) {
			out = append(out, s.events[i].clone())
		}
	}
	return out
}

// FindByEntity returns events whose payload references the given entity.
func (s *MemoryStore) FindByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return s.filter(func(e Event) bool { return e.EntityType == entityType && e.EntityID == entityID }, ""), nil
}

// FindSince returns events with a Timestamp at or after since.
func (s *MemoryStore) FindSince(ctx context.Context, since time.Time) ([]Event, error) {
	return s.filter(func(e Event) bool { return !e.Timestamp.Before(since) }, ""), nil
}

func (s *MemoryStore) filter(match func(Event) bool, workspace string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if visible(e, workspace) && match(e) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Stats returns counts by type and the log bounds.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	return s.stats(""), nil
}

func (s *MemoryStore) stats(workspace string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByType: make(map[string]int)}
	for _, e := range s.events {
		if !visible(e, workspace) {
			continue
		}
		if stats.TotalEvents == 0 {
			stats.FirstSequence = e.SequenceNumber
			stats.FirstEventAt = e.Timestamp
		}
		stats.TotalEvents++
		stats.ByType[e.EventType]++
		stats.LastSequence = e.SequenceNumber
		stats.LastEventAt = e.Timestamp
	}
	return stats
}

// Clear resets the store. Sequence numbering restarts at 1.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]Event, 0)
	s.byCorrelation = make(map[string][]int)
	s.snapshots = make(map[string]Snapshot)
	s.sequenceNumber = 0
	return nil
}

// clearWorkspace drops the events and snapshot of one workspace. Sequence
// numbering continues since other workspaces still share it.
func (s *MemoryStore) clearWorkspace(workspace string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Event, 0, len(s.events))
	byCorrelation := make(map[string][]int)
	for _, e := range s.events {
		if e.Metadata.WorkspaceID == workspace {
			continue
		}
		kept = append(kept, e)
		cid := e.Metadata.CorrelationID
		byCorrelation[cid] = append(byCorrelation[cid], len(kept)-1)
	}
	s.events = kept
	s.byCorrelation = byCorrelation
	delete(s.snapshots, workspace)
}

// SaveSnapshot overwrites the snapshot of the aggregate.
func (s *MemoryStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = s.now()
	}
	state := make([]byte, len(snapshot.State))
	copy(state, snapshot.State)
	snapshot.State = state

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot returns the latest snapshot of the aggregate.
func (s *MemoryStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[aggregateID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	state := make([]byte, len(snap.State))
	copy(state, snap.State)
	snap.State = state
	return &snap, nil
}

// DeleteSnapshot drops the snapshot of the aggregate, if any.
func (s *MemoryStore) DeleteSnapshot(ctx context.Context, aggregateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, aggregateID)
	return nil
}

// ClearSnapshots drops every snapshot and keeps the events.
func (s *MemoryStore) ClearSnapshots(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = make(map[string]Snapshot)
	return nil
}

// memoryWorkspace is the MemoryStore restricted to one workspace.
type memoryWorkspace struct {
	store     *MemoryStore
	workspace string
}

func (w *memoryWorkspace) Append(ctx context.Context, event *Event) (uint64, error) {
	return w.store.append(event, w.workspace)
}

func (w *memoryWorkspace) FindByType(ctx context.Context, eventType string, opts QueryOptions) ([]Event, error) {
	return w.store.findByType(eventType, opts, w.workspace), nil
}

func (w *memoryWorkspace) FindByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return w.store.findByCorrelation(correlationID, w.workspace), nil
}

func (w *memoryWorkspace) FindByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return w.store.filter(func(e Event) bool { return e.EntityType == entityType && e.EntityID == entityID }, w.workspace), nil
}

func (w *memoryWorkspace) FindSince(ctx context.Context, since time.Time) ([]Event, error) {
	return w.store.filter(func(e Event) bool { return !e.Timestamp.Before(since) }, w.workspace), nil
}

func (w *memoryWorkspace) Stats(ctx context.Context) (Stats, error) {
	return w.store.stats(w.workspace), nil
}

func (w *memoryWorkspace) Clear(ctx context.Context) error {
	w.store.clearWorkspace(w.workspace)
	return nil
}

func (w *memoryWorkspace) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	return w.store.SaveSnapshot(ctx, snapshot)
}

func (w *memoryWorkspace) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	return w.store.GetSnapshot(ctx, aggregateID)
}
