package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyLockAndResult(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)

	key := KeyIdemRegister(1, "abc")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	ok, err := s.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSet(key, `RES:{"id":3}`, time.Hour).SetVal("OK")
	require.NoError(t, s.SaveResult(context.Background(), key, `{"id":3}`))

	mock.ExpectGet(key).SetVal(`RES:{"id":3}`)
	payload, found, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":3}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyLockContention(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)

	key := KeyIdemRegister(1, "abc")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(false)
	ok, err := s.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Still locked, no result stored yet.
	mock.ExpectGet(key).SetVal("LOCK")
	_, found, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectGet(key).SetVal("LOCK")
	locked, err := s.IsLocked(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestIdempotencyMissAndRelease(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)

	key := KeyIdemRegister(2, "xyz")

	mock.ExpectGet(key).RedisNil()
	_, found, err := s.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, s.Release(context.Background(), key))
}
