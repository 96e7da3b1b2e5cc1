package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/services"
	"github.com/andre-fig/backoffice/services/servicetest"
)

func startTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func newCachedDirectory(t *testing.T) (*services.CachedDirectory, *servicetest.Directory, *miniredis.Miniredis) {
	t.Helper()
	server, client := startTestRedis(t)
	upstream := servicetest.NewDirectory(
		servicetest.User("u1", "Ana", "g1", "SUP"),
		servicetest.User("u2", "Bruno", "g1", "SUP", "FIN"),
		servicetest.User("u3", "Carla", "g2", "FIN"),
	)
	return services.NewCachedDirectory(upstream, client, time.Minute, zap.NewNop()), upstream, server
}

func TestCachedDirectory_GetUser(t *testing.T) {
	dir, upstream, server := newCachedDirectory(t)
	ctx := context.Background()

	user, err := dir.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, 1, upstream.GetCalls())

	user, err = dir.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, 1, upstream.GetCalls(), "second read is served from redis")
	assert.True(t, server.Exists("backoffice:dir:user:u1"))

	require.NoError(t, dir.Invalidate(ctx, "u1"))
	_, err = dir.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.GetCalls())

	_, err = dir.GetUser(ctx, "ghost")
	assert.True(t, errors.Is(err, services.ErrNotFound))
	assert.False(t, server.Exists("backoffice:dir:user:ghost"))
}

func TestCachedDirectory_FindUserBySector(t *testing.T) {
	dir, upstream, server := newCachedDirectory(t)
	ctx := context.Background()

	user, err := dir.FindUserBySector(ctx, "SUP", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)

	assert.True(t, server.Exists("backoffice:dir:sector-index:built"))
	members, err := server.Members("backoffice:dir:sector:SUP")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
	assert.Equal(t, 0, upstream.GetCalls(), "profiles come from the index scan")

	_, err = dir.FindUserBySector(ctx, "FIN", "u2")
	require.NoError(t, err)

	_, err = dir.FindUserBySector(ctx, "HR", "")
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestCachedDirectory_FindUserBySector_RechecksMembership(t *testing.T) {
	dir, upstream, _ := newCachedDirectory(t)
	ctx := context.Background()

	_, err := dir.FindUserBySector(ctx, "SUP", "u1")
	require.NoError(t, err)

	// u2 left SUP after the index was built
	upstream.Put(servicetest.User("u2", "Bruno", "g1", "FIN"))
	require.NoError(t, dir.Invalidate(ctx, "u2"))

	_, err = dir.FindUserBySector(ctx, "SUP", "u1")
	assert.True(t, errors.Is(err, services.ErrNotFound))

	upstream.Put(servicetest.User("u4", "Davi", "g1", "SUP"))
	require.NoError(t, dir.RebuildSectorIndex(ctx))
	user, err := dir.FindUserBySector(ctx, "SUP", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u4", user.ID)
}

func TestCachedDirectory_RedisDownFallsBack(t *testing.T) {
	dir, _, server := newCachedDirectory(t)
	ctx := context.Background()
	server.Close()

	user, err := dir.GetUser(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "Carla", user.Name)

	user, err = dir.FindUserBySector(ctx, "SUP", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
}
