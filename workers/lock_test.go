package workers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestRedisLocker_TryLock(t *testing.T) {
	server, client := startTestRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "test:lock", time.Minute)

	release, ok, err := locker.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, server.Exists("test:lock"))
	assert.Equal(t, time.Minute, server.TTL("test:lock"))

	_, ok, err = locker.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	release()
	assert.False(t, server.Exists("test:lock"))

	_, ok, err = locker.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_ReleaseKeepsForeignLease(t *testing.T) {
	server, client := startTestRedis(t)
	locker := NewRedisLocker(client, "test:lock", time.Minute)

	release, ok, err := locker.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Our lease expired and another instance took over
	require.NoError(t, server.Set("test:lock", "someone-else"))
	release()

	got, err := server.Get("test:lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisLocker_DefaultTTL(t *testing.T) {
	locker := NewRedisLocker(nil, "k", 0)
	assert.Equal(t, 10*time.Minute, locker.TTL)
}
