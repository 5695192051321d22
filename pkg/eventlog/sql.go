package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers. Sequence numbers
// are assigned under an in-process lock, so a database must not be shared by
// several writers.
type SQLStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLStore wraps an open database. Call Init before use.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
	sequence_number BIGINT PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	occurred_at BIGINT NOT NULL,
	stored_at BIGINT NOT NULL,
	correlation_id TEXT NOT NULL,
	causation_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	workspace_id TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_correlation ON events (correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_entity ON events (entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_workspace ON events (workspace_id, event_type)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	version BIGINT NOT NULL,
	created_at BIGINT NOT NULL
)`,
}

// Init creates the tables and indexes if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventlog: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const eventColumns = `sequence_number, event_id, event_type, occurred_at, stored_at, correlation_id, causation_id, user_id, session_id, workspace_id, entity_type, entity_id, payload`

// ForWorkspace returns a view that only sees events of workspaceID.
func (s *SQLStore) ForWorkspace(workspaceID string) Store {
	return &sqlWorkspace{store: s, workspace: workspaceID}
}

// Append persists the event with the next sequence number.
func (s *SQLStore) Append(ctx context.Context, event *Event) (uint64, error) {
	return s.append(ctx, event, "")
}

func (s *SQLStore) append(ctx context.Context, event *Event, workspace string) (uint64, error) {
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
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("eventlog: encode payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_number), 0) FROM events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("eventlog: read sequence: %w", err)
	}

	seq := uint64(last) + 1
	storedAt := s.now()
	entityType, entityID := entityRef(payload)

	query := `INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = s.db.ExecContext(ctx, query,
		int64(seq), event.EventID, event.EventType, event.Timestamp.UnixNano(), storedAt.UnixNano(),
		event.Metadata.CorrelationID, event.Metadata.CausationID, event.Metadata.UserID, event.Metadata.SessionID,
		event.Metadata.WorkspaceID, entityType, entityID, string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("eventlog: insert event %s: %w", event.EventID, err)
	}

	event.Payload = payload
	event.SequenceNumber = seq
	event.StoredAt = storedAt
	event.EntityType, event.EntityID = entityType, entityID
	return seq, nil
}

// where joins the predicates of a query, adding the workspace filter of a
// scoped view. Placeholders are numbered after the ones already in args.
func where(workspace string, clauses []string, args []any) (string, []any) {
	if workspace != "" {
		args = append(args, workspace)
		clauses = append(clauses, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// FindByType returns events of one type in ascending sequence order.
func (s *SQLStore) FindByType(ctx context.Context, eventType string, opts QueryOptions) ([]Event, error) {
	return s.findByType(ctx, eventType, opts, "")
}

func (s *SQLStore) findByType(ctx context.Context, eventType string, opts QueryOptions, workspace string) ([]Event, error) {
	var since int64
	if !opts.Since.IsZero() {
		since = opts.Since.UnixNano()
	}
	cond, args := where(workspace, []string{"event_type = $1", "occurred_at >= $2"}, []any{eventType, since})
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query := `SELECT ` + eventColumns + ` FROM events` + cond +
			fmt.Sprintf(` ORDER BY sequence_number DESC LIMIT $%d`, len(args))
		events, err := s.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		return events, nil
	}
	return s.query(ctx, `SELECT `+eventColumns+` FROM events`+cond+` ORDER BY sequence_number ASC`, args...)
}

// FindByCorrelation returns the causal chain of one workflow run.
func (s *SQLStore) FindByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return s.findWhere(ctx, "", []string{"correlation_id = $1"}, correlationID)
}

// FindByEntity returns events whose payload references the given entity.
func (s *SQLStore) FindByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return s.findWhere(ctx, "", []string{"entity_type = $1", "entity_id = $2"}, entityType, entityID)
}

// FindSince returns events with a Timestamp at or after since.
func (s *SQLStore) FindSince(ctx context.Context, since time.Time) ([]Event, error) {
	return s.findWhere(ctx, "", []string{"occurred_at >= $1"}, since.UnixNano())
}

func (s *SQLStore) findWhere(ctx context.Context, workspace string, clauses []string, args ...any) ([]Event, error) {
	cond, args := where(workspace, clauses, args)
	return s.query(ctx, `SELECT `+eventColumns+` FROM events`+cond+` ORDER BY sequence_number ASC`, args...)
}

// Stats returns counts by type and the log bounds.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	return s.stats(ctx, "")
}

func (s *SQLStore) stats(ctx context.Context, workspace string) (Stats, error) {
	stats := Stats{ByType: make(map[string]int)}
	cond, args := where(workspace, nil, nil)

	var total, firstSeq, lastSeq, firstAt, lastAt int64
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(MIN(sequence_number), 0), COALESCE(MAX(sequence_number), 0),
		COALESCE(MIN(occurred_at), 0), COALESCE(MAX(occurred_at), 0) FROM events`+cond, args...)
	if err := row.Scan(&total, &firstSeq, &lastSeq, &firstAt, &lastAt); err != nil {
		return Stats{}, fmt.Errorf("eventlog: stats: %w", err)
	}
	stats.TotalEvents = int(total)
	stats.FirstSequence = uint64(firstSeq)
	stats.LastSequence = uint64(lastSeq)
	if total > 0 {
		stats.FirstEventAt = time.Unix(0, firstAt).UTC()
		stats.LastEventAt = time.Unix(0, lastAt).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM events`+cond+` GROUP BY event_type`, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("eventlog: stats by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return Stats{}, err
		}
		stats.ByType[eventType] = int(count)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Clear drops all events and snapshots.
func (s *SQLStore) Clear(ctx context.Context) error {
	return s.exec(ctx, "clear", `DELETE FROM events`, `DELETE FROM snapshots`)
}

func (s *SQLStore) clearWorkspace(ctx context.Context, workspace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE workspace_id = $1`, workspace); err != nil {
		return fmt.Errorf("eventlog: clear workspace %s: %w", workspace, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE aggregate_id = $1`, workspace); err != nil {
		return fmt.Errorf("eventlog: clear workspace %s: %w", workspace, err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, op string, stmts ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("eventlog: %s: %w", op, err)
		}
	}
	return nil
}

// DeleteSnapshot drops the snapshot of the aggregate, if any.
func (s *SQLStore) DeleteSnapshot(ctx context.Context, aggregateID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE aggregate_id = $1`, aggregateID); err != nil {
		return fmt.Errorf("eventlog: delete snapshot %s: %w", aggregateID, err)
	}
	return nil
}

// ClearSnapshots drops every snapshot and keeps the events.
func (s *SQLStore) ClearSnapshots(ctx context.Context) error {
	return s.exec(ctx, "clear snapshots", `DELETE FROM snapshots`)
}

// SaveSnapshot upserts the snapshot of the aggregate.
func (s *SQLStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = s.now()
	}
	query := `INSERT INTO snapshots (aggregate_id, state, version, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (aggregate_id) DO UPDATE SET state = excluded.state, version = excluded.version, created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, query,
		snapshot.AggregateID, string(snapshot.State), int64(snapshot.Version), snapshot.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("eventlog: save snapshot %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

// GetSnapshot returns the latest snapshot of the aggregate.
func (s *SQLStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	query := `SELECT aggregate_id, state, version, created_at FROM snapshots WHERE aggregate_id = $1`
	var (
		snap      Snapshot
		state     string
		version   int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, aggregateID).Scan(&snap.AggregateID, &state, &version, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("eventlog: get snapshot %s: %w", aggregateID, err)
	}
	snap.State = json.RawMessage(state)
	snap.Version = uint64(version)
	snap.CreatedAt = time.Unix(0, createdAt).UTC()
	return &snap, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                    Event
		seq, occurred, store int64
		payload              string
	)
	err := rows.Scan(&seq, &e.EventID, &e.EventType, &occurred, &store,
		&e.Metadata.CorrelationID, &e.Metadata.CausationID, &e.Metadata.UserID, &e.Metadata.SessionID,
		&e.Metadata.WorkspaceID, &e.EntityType, &e.EntityID, &payload)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: scan event: %w", err)
	}
	e.SequenceNumber = uint64(seq)
	e.Timestamp = time.Unix(0, occurred).UTC()
	e.StoredAt = time.Unix(0, store).UTC()
	e.Payload = map[string]any{}
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return Event{}, fmt.Errorf("eventlog: decode payload of %s: %w", e.EventID, err)
		}
	}
	return e, nil
}

// sqlWorkspace is the SQLStore restricted to one workspace.
type sqlWorkspace struct {
	store     *SQLStore
	workspace string
}

func (w *sqlWorkspace) Append(ctx context.Context, event *Event) (uint64, error) {
	return w.store.append(ctx, event, w.workspace)
}

func (w *sqlWorkspace) FindByType(ctx context.Context, eventType string, opts QueryOptions) ([]Event, error) {
	return w.store.findByType(ctx, eventType, opts, w.workspace)
}

func (w *sqlWorkspace) FindByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return w.store.findWhere(ctx, w.workspace, []string{"correlation_id = $1"}, correlationID)
}

func (w *sqlWorkspace) FindByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return w.store.findWhere(ctx, w.workspace, []string{"entity_type = $1", "entity_id = $2"}, entityType, entityID)
}

func (w *sqlWorkspace) FindSince(ctx context.Context, since time.Time) ([]Event, error) {
	return w.store.findWhere(ctx, w.workspace, []string{"occurred_at >= $1"}, since.UnixNano())
}

func (w *sqlWorkspace) Stats(ctx context.Context) (Stats, error) {
	return w.store.stats(ctx, w.workspace)
}

func (w *sqlWorkspace) Clear(ctx context.Context) error {
	return w.store.clearWorkspace(ctx, w.workspace)
}

func (w *sqlWorkspace) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	return w.store.SaveSnapshot(ctx, snapshot)
}

func (w *sqlWorkspace) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	return w.store.GetSnapshot(ctx, aggregateID)
}
