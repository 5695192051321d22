package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueryOptions narrows FindByType.
type QueryOptions struct {
	// Limit keeps only the most recent Limit events (still returned in ascending order).
	Limit int
	// Since drops events whose Timestamp is before Since.
	Since time.Time
}

// Stats summarizes the log contents.
type Stats struct {
	TotalEvents   int            `json:"total_events"`
	ByType        map[string]int `json:"by_type"`
	FirstSequence uint64         `json:"first_sequence"`
	LastSequence  uint64         `json:"last_sequence"`
	FirstEventAt  time.Time      `json:"first_event_at,omitempty"`
	LastEventAt   time.Time      `json:"last_event_at,omitempty"`
}

// Snapshot is the cached state of one aggregate, overwritten on every save.
type Snapshot struct {
	AggregateID string          `json:"aggregate_id"`
	State       json.RawMessage `json:"state"`
	Version     uint64          `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Log is the append-only event log.
type Log interface {
	// Append assigns SequenceNumber, StoredAt and the entity reference, then
	// persists the event. Returns the committed sequence number.
	Append(ctx context.Context, event *Event) (uint64, error)

	FindByType(ctx context.Context, eventType string, opts QueryOptions) ([]Event, error)
	// FindByCorrelation returns every event of one workflow run ordered by sequence.
	FindByCorrelation(ctx context.Context, correlationID string) ([]Event, error)
	FindByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
	FindSince(ctx context.Context, since time.Time) ([]Event, error)
	Stats(ctx context.Context) (Stats, error)

	// Clear drops every event and snapshot the store can see; a workspace
	// view drops only its own events and snapshot. Test-only.
	Clear(ctx context.Context) error
}

// SnapshotStore caches aggregate state to bound replay cost.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	// GetSnapshot returns ErrSnapshotNotFound when nothing was saved for the aggregate.
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// SnapshotPurger is implemented by snapshot stores that can drop snapshots.
type SnapshotPurger interface {
	DeleteSnapshot(ctx context.Context, aggregateID string) error
	ClearSnapshots(ctx context.Context) error
}

// WorkspaceScoper is implemented by stores that can serve several workspaces
// from one log. The returned view stamps appended events with the workspace
// id and restricts every query, Stats and Clear to that workspace.
type WorkspaceScoper interface {
	ForWorkspace(workspaceID string) Store
}

// Store is a log with a snapshot cache.
type Store interface {
	Log
	SnapshotStore
}

// ForWorkspace returns the view of store restricted to workspaceID.
func ForWorkspace(store Store, workspaceID string) (Store, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: empty workspace id", ErrInvalidEvent)
	}
	if c, ok := store.(*composite); ok {
		scoper, ok := c.Log.(WorkspaceScoper)
		if !ok {
			return nil, unscopable(c.Log)
		}
		return &composite{Log: scoper.ForWorkspace(workspaceID), snapshots: c.snapshots, workspace: workspaceID}, nil
	}
	scoper, ok := store.(WorkspaceScoper)
	if !ok {
		return nil, unscopable(store)
	}
	return scoper.ForWorkspace(workspaceID), nil
}

func unscopable(log Log) error {
	return fmt.Errorf("%w: %T cannot scope events by workspace", ErrUnsupportedBackend, log)
}

type composite struct {
	Log
	snapshots SnapshotStore
	// workspace is set on views returned by ForWorkspace.
	workspace string
}

// Compose pairs any log with any snapshot store, e.g. a SQL log with Redis snapshots.
func Compose(log Log, snapshots SnapshotStore) Store {
	return &composite{Log: log, snapshots: snapshots}
}

func (c *composite) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	return c.snapshots.SaveSnapshot(ctx, snapshot)
}

func (c *composite) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	return c.snapshots.GetSnapshot(ctx, aggregateID)
}

// Clear drops the log's events and the matching snapshots of the paired store.
func (c *composite) Clear(ctx context.Context) error {
	if err := c.Log.Clear(ctx); err != nil {
		return err
	}
	purger, ok := c.snapshots.(SnapshotPurger)
	if !ok {
		return fmt.Errorf("%w: snapshot store %T cannot be cleared", ErrUnsupportedBackend, c.snapshots)
	}
	if c.workspace != "" {
		return purger.DeleteSnapshot(ctx, c.workspace)
	}
	return purger.ClearSnapshots(ctx)
}
