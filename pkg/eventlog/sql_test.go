package eventlog

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(sequence_number), 0) FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(5), "e5", "vault.completed", t0.UnixNano(), sqlmock.AnyArg(),
			"corr-1", "cause-1", "u-1", "", "", "vault", "brand", `{"vault_id":"brand"}`).
		WillReturnResult(sqlmock.NewResult(5, 1))

	e := newEvent("e5", "vault.completed", "corr-1", t0, map[string]any{"vault_id": "brand"})
	e.Metadata.CausationID = "cause-1"
	e.Metadata.UserID = "u-1"

	seq, err := store.Append(ctx, e)
	require.NoError(t, err)
	require.Equal(t, uint64(5), seq)
	require.Equal(t, "vault", e.EntityType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_FindByCorrelation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db)
	columns := []string{"sequence_number", "event_id", "event_type", "occurred_at", "stored_at", "correlation_id",
		"causation_id", "user_id", "session_id", "workspace_id", "entity_type", "entity_id", "payload"}

	mock.ExpectQuery("SELECT (.+) FROM events WHERE correlation_id = \\$1 ORDER BY sequence_number ASC").
		WithArgs("corr-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "e1", "vault.completed", t0.UnixNano(), t0.UnixNano(), "corr-1", "", "", "", "", "vault", "brand", `{"vault_id":"brand"}`).
			AddRow(int64(2), "e2", "vault.analyzed", t0.Add(time.Second).UnixNano(), t0.UnixNano(), "corr-1", "e1", "", "", "", "vault", "brand", `{"vault_id":"brand","score":80}`))

	events, err := store.FindByCorrelation(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "e1", events[1].Metadata.CausationID)
	require.Equal(t, t0.Add(time.Second), events[1].Timestamp)
	require.Equal(t, 80.0, events[1].Payload["score"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_WorkspaceViewFiltersQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	view := NewSQLStore(db).ForWorkspace("loja-a")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(sequence_number), 0) FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(1), "e1", "vault.completed", t0.UnixNano(), sqlmock.AnyArg(),
			"corr-1", "", "", "", "loja-a", "vault", "brand", `{"vault_id":"brand"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE event_type = $1 AND occurred_at >= $2 AND workspace_id = $3 ORDER BY sequence_number DESC LIMIT $4")).
		WithArgs("vault.completed", int64(0), "loja-a", 5).
		WillReturnRows(sqlmock.NewRows([]string{"sequence_number"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE workspace_id = $1")).
		WithArgs("loja-a").
		WillReturnRows(sqlmock.NewRows([]string{"count", "min_seq", "max_seq", "min_at", "max_at"}).AddRow(1, 1, 1, t0.UnixNano(), t0.UnixNano()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, COUNT(*) FROM events WHERE workspace_id = $1 GROUP BY event_type")).
		WithArgs("loja-a").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).AddRow("vault.completed", 1))

	e := newEvent("e1", "vault.completed", "corr-1", t0, map[string]any{"vault_id": "brand"})
	_, err = view.Append(ctx, e)
	require.NoError(t, err)
	require.Equal(t, "loja-a", e.Metadata.WorkspaceID)

	_, err = view.FindByType(ctx, "vault.completed", QueryOptions{Limit: 5})
	require.NoError(t, err)

	stats, err := view.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEvents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetSnapshotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT aggregate_id, state, version, created_at FROM snapshots").
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"aggregate_id", "state", "version", "created_at"}))

	_, err = NewSQLStore(db).GetSnapshot(context.Background(), "ws-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSQLStore_SQLiteRoundTrip exercises the real schema on an in-memory SQLite database.
func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	sqlStore, ok := store.(*SQLStore)
	require.True(t, ok)
	defer func() { _ = sqlStore.Close() }()

	fixtures := []*Event{
		newEvent("e1", "vault.completed", "c1", t0, map[string]any{"vault_id": "brand"}),
		newEvent("e2", "vault.completed", "c2", t0.Add(time.Minute), map[string]any{"vault_id": "offer"}),
		newEvent("e3", "vault.analyzed", "c1", t0.Add(2*time.Minute), map[string]any{"vault_id": "brand", "score": 81}),
	}
	for i, e := range fixtures {
		seq, err := store.Append(ctx, e)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), seq)
	}

	chain, err := store.FindByCorrelation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e3"}, ids(chain))
	require.Equal(t, 81.0, chain[1].Payload["score"])

	latest, err := store.FindByType(ctx, "vault.completed", QueryOptions{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"e2"}, ids(latest))

	byEntity, err := store.FindByEntity(ctx, "vault", "brand")
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e3"}, ids(byEntity))

	since, err := store.FindSince(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"e2", "e3"}, ids(since))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalEvents)
	require.Equal(t, 2, stats.ByType["vault.completed"])
	require.Equal(t, uint64(3), stats.LastSequence)
	require.Equal(t, t0, stats.FirstEventAt)

	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{AggregateID: "ws", State: []byte(`{"n":1}`), Version: 1}))
	require.NoError(t, store.SaveSnapshot(ctx, Snapshot{AggregateID: "ws", State: []byte(`{"n":2}`), Version: 3}))
	snap, err := store.GetSnapshot(ctx, "ws")
	require.NoError(t, err)
	require.Equal(t, uint64(3), snap.Version)
	require.JSONEq(t, `{"n":2}`, string(snap.State))

	require.NoError(t, store.Clear(ctx))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalEvents)
}

func TestSQLStore_SQLiteWorkspaceViews(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer func() { _ = store.(*SQLStore).Close() }()

	a, err := ForWorkspace(store, "loja-a")
	require.NoError(t, err)
	b, err := ForWorkspace(store, "loja-b")
	require.NoError(t, err)

	_, err = a.Append(ctx, newEvent("a1", "vault.completed", "shared", t0, map[string]any{"vault_id": "brand"}))
	require.NoError(t, err)
	_, err = a.Append(ctx, newEvent("a2", "vault.analyzed", "shared", t0.Add(time.Minute), map[string]any{"vault_id": "brand"}))
	require.NoError(t, err)
	_, err = b.Append(ctx, newEvent("b1", "vault.completed", "shared", t0.Add(2*time.Minute), map[string]any{"vault_id": "brand"}))
	require.NoError(t, err)

	chain, err := b.FindByCorrelation(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, ids(chain))
	require.Equal(t, "loja-b", chain[0].Metadata.WorkspaceID)

	byEntity, err := a.FindByEntity(ctx, "vault", "brand")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "a2"}, ids(byEntity))

	since, err := b.FindSince(ctx, t0)
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, ids(since))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEvents)
	require.Equal(t, uint64(3), stats.FirstSequence)

	require.NoError(t, a.SaveSnapshot(ctx, Snapshot{AggregateID: "loja-a", State: []byte(`{}`), Version: 2}))
	require.NoError(t, a.Clear(ctx))
	_, err = store.GetSnapshot(ctx, "loja-a")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	all, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, all.TotalEvents)
	require.Equal(t, map[string]int{"vault.completed": 1}, all.ByType)
}

func TestOpen_UnsupportedBackend(t *testing.T) {
	_, err := Open(context.Background(), "mongodb://localhost")
	require.ErrorIs(t, err, ErrUnsupportedBackend)

	store, err := Open(context.Background(), "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
}
