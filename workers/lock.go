package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker guards a reconciliation cycle across processes
type Locker interface {
	// TryLock returns ok=false when another holder owns the lock
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-key lease lock (SET NX PX)
type RedisLocker struct {
	Redis *redis.Client
	Key   string
	TTL   time.Duration
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{Redis: rdb, Key: key, TTL: ttl}
}

var _ Locker = (*RedisLocker)(nil)

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := l.Redis.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", l.Key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The cycle context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.Redis, []string{l.Key}, token).Err()
	}
	return release, true, nil
}
