package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Open builds a store from a DSN:
//
//	""  or "memory"             in-process MemoryStore
//	sqlite://<path>|:memory:    SQLStore on modernc.org/sqlite
//	postgres://... postgresql:// SQLStore on lib/pq
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("eventlog: open sqlite: %w", err)
		}
		if path == ":memory:" {
			// Each connection of an in-memory database is a distinct database.
			db.SetMaxOpenConns(1)
		}
		return initSQL(ctx, db)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("eventlog: open postgres: %w", err)
		}
		return initSQL(ctx, db)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, dsn)
	}
}

func initSQL(ctx context.Context, db *sql.DB) (Store, error) {
	store := NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
