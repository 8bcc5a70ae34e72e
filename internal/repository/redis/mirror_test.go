package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhub/eventhub-go/internal/domain"
)

func sampleSnapshot() domain.EventSnapshot {
	return domain.EventSnapshot{
		EventID:         1,
		AvailableSeats:  0,
		MaxParticipants: 5,
		SoldOut:         true,
		Status:          domain.EventActive,
		UpdatedAt:       time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMirrorProject(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewMirror(rdb, time.Minute)

	snap := sampleSnapshot()
	b, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectSet(KeyEventSnapshot(1), b, time.Minute).SetVal("OK")

	require.NoError(t, m.Project(context.Background(), 1, snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorSnapshotHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewMirror(rdb, time.Minute)

	snap := sampleSnapshot()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	mock.ExpectGet(KeyEventSnapshot(1)).SetVal(string(b))

	got, ok, err := m.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestMirrorSnapshotMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewMirror(rdb, time.Minute)

	mock.ExpectGet(KeyEventSnapshot(2)).RedisNil()

	_, ok, err := m.Snapshot(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirrorInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	m := NewMirror(rdb, 0) // zero ttl falls back to the default

	mock.ExpectDel(KeyEventSnapshot(3)).SetVal(1)

	require.NoError(t, m.Invalidate(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
