package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventhub/eventhub-go/internal/domain"
)

// Mirror is the best-effort projection of event snapshots for low-latency
// UI polling. It is never consulted for correctness decisions and can be
// rebuilt from the authoritative store at any time.
type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMirror(rdb *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Mirror{rdb: rdb, ttl: ttl}
}

// Project writes the snapshot under the event's mirror key. Callers treat
// any error as non-fatal.
func (m *Mirror) Project(ctx context.Context, eventID int64, snap domain.EventSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return m.rdb.Set(ctx, KeyEventSnapshot(eventID), b, m.ttl).Err()
}

// Snapshot reads the mirrored snapshot. ok is false on a miss; a miss is
// normal and the caller falls back to the authoritative store.
func (m *Mirror) Snapshot(ctx context.Context, eventID int64) (domain.EventSnapshot, bool, error) {
	var snap domain.EventSnapshot

	s, err := m.rdb.Get(ctx, KeyEventSnapshot(eventID)).Result()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}

	if err := json.Unmarshal([]byte(s), &snap); err != nil {
		return snap, false, err
	}

	return snap, true, nil
}

// Invalidate drops the mirrored snapshot, forcing the next read back to
// the authoritative store.
func (m *Mirror) Invalidate(ctx context.Context, eventID int64) error {
	return m.rdb.Del(ctx, KeyEventSnapshot(eventID)).Err()
}
