package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore implements SnapshotStore using Redis. Each aggregate
// occupies one key holding the JSON-encoded snapshot.
type RedisSnapshotStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a new store backed by Redis.
func NewRedisSnapshotStore(addr string, password string, db int) *RedisSnapshotStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSnapshotStoreFromClient(rdb)
}

// NewRedisSnapshotStoreFromClient reuses an existing client.
func NewRedisSnapshotStoreFromClient(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, prefix: "snapshot:"}
}

// WithTTL expires snapshots after ttl; zero keeps them forever.
func (s *RedisSnapshotStore) WithTTL(ttl time.Duration) *RedisSnapshotStore {
	s.ttl = ttl
	return s
}

// Ping checks connectivity.
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

func (s *RedisSnapshotStore) key(aggregateID string) string {
	return s.prefix + aggregateID
}

// SaveSnapshot overwrites the snapshot of the aggregate.
func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("eventlog: encode snapshot %s: %w", snapshot.AggregateID, err)
	}
	if err := s.client.Set(ctx, s.key(snapshot.AggregateID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("eventlog: redis set snapshot %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

// GetSnapshot returns the latest snapshot of the aggregate.
func (s *RedisSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(aggregateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("eventlog: redis get snapshot %s: %w", aggregateID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("eventlog: decode snapshot %s: %w", aggregateID, err)
	}
	return &snap, nil
}

// DeleteSnapshot drops the snapshot of the aggregate, if any.
func (s *RedisSnapshotStore) DeleteSnapshot(ctx context.Context, aggregateID string) error {
	if err := s.client.Del(ctx, s.key(aggregateID)).Err(); err != nil {
		return fmt.Errorf("eventlog: redis delete snapshot %s: %w", aggregateID, err)
	}
	return nil
}

// ClearSnapshots drops every key under the snapshot prefix.
func (s *RedisSnapshotStore) ClearSnapshots(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("eventlog: redis scan snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("eventlog: redis clear snapshots: %w", err)
	}
	return nil
}
