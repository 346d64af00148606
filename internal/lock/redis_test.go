package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	l, err := NewRedisLock(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l, mr
}

func TestRedisLock_LockIsExclusive(t *testing.T) {
	first, mr := newTestLock(t)
	second, err := NewRedisLock(mr.Addr())
	require.NoError(t, err)
	defer second.Close()

	ctx := context.Background()

	ok, err := first.Lock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Lock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("lock:booking:sweep"))
}

func TestRedisLock_UnlockOnlyByOwner(t *testing.T) {
	first, mr := newTestLock(t)
	second, err := NewRedisLock(mr.Addr())
	require.NoError(t, err)
	defer second.Close()

	ctx := context.Background()

	ok, err := first.Lock(ctx, "partitions", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, second.Unlock(ctx, "partitions"))
	assert.True(t, mr.Exists("lock:booking:partitions"))

	require.NoError(t, first.Unlock(ctx, "partitions"))
	assert.False(t, mr.Exists("lock:booking:partitions"))

	ok, err = second.Lock(ctx, "partitions", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Expires(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	ok, err := l.Lock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = l.Lock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisLock_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisLock(addr)
	assert.Error(t, err)
}
