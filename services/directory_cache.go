package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/db"
)

const (
	userCacheKeyPrefix   = "backoffice:dir:user:"
	sectorIndexKeyPrefix = "backoffice:dir:sector:"
	sectorIndexBuiltKey  = "backoffice:dir:sector-index:built"
)

// UserScanner iterates over every user in the directory
type UserScanner interface {
	Directory
	EachUser(ctx context.Context, fn func(*db.DirectoryUser) bool) error
}

// CachedDirectory fronts a directory with a redis profile cache and a
// sector -> users index. Redis failures degrade to the upstream directory.
type CachedDirectory struct {
	Upstream UserScanner
	Redis    *redis.Client
	TTL      time.Duration
	Logger   *zap.Logger
}

func NewCachedDirectory(upstream UserScanner, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory{Upstream: upstream, Redis: rdb, TTL: ttl, Logger: logger}
}

var _ Directory = (*CachedDirectory)(nil)

// GetUser returns a cached profile or fetches and caches it
func (d *CachedDirectory) GetUser(ctx context.Context, userID string) (*db.DirectoryUser, error) {
	raw, err := d.Redis.Get(ctx, userCacheKeyPrefix+userID).Bytes()
	if err == nil {
		var user db.DirectoryUser
		if jsonErr := json.Unmarshal(raw, &user); jsonErr == nil {
			return &user, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.Logger.Warn("directory cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	user, err := d.Upstream.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.storeUser(ctx, user)
	return user, nil
}

// ListUsers is not cached, listings are operator-driven searches
func (d *CachedDirectory) ListUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error) {
	return d.Upstream.ListUsers(ctx, q)
}

// MatchesApplication always asks the directory
func (d *CachedDirectory) MatchesApplication(ctx context.Context, userID, appID string) (bool, error) {
	return d.Upstream.MatchesApplication(ctx, userID, appID)
}

// FindUserBySector answers from the sector index, building it on first use
func (d *CachedDirectory) FindUserBySector(ctx context.Context, sectorCode, exclude string) (*db.DirectoryUser, error) {
	if err := d.ensureSectorIndex(ctx); err != nil {
		d.Logger.Warn("sector index unavailable, scanning directory", zap.String("sector", sectorCode), zap.Error(err))
		return d.Upstream.FindUserBySector(ctx, sectorCode, exclude)
	}

	members, err := d.Redis.SMembers(ctx, sectorIndexKeyPrefix+sectorCode).Result()
	if err != nil {
		d.Logger.Warn("sector index read failed, scanning directory", zap.String("sector", sectorCode), zap.Error(err))
		return d.Upstream.FindUserBySector(ctx, sectorCode, exclude)
	}
	sort.Strings(members)

	for _, userID := range members {
		if userID == exclude {
			continue
		}
		user, err := d.GetUser(ctx, userID)
		if err != nil {
			continue
		}
		// The index may lag behind a membership change
		if user.HasSector(sectorCode) {
			return user, nil
		}
	}
	return nil, fmt.Errorf("%w: no user in sector %s", ErrNotFound, sectorCode)
}

// Invalidate drops a cached profile
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return d.Redis.Del(ctx, userCacheKeyPrefix+userID).Err()
}

// RebuildSectorIndex forces a full directory scan into the index
func (d *CachedDirectory) RebuildSectorIndex(ctx context.Context) error {
	if err := d.Redis.Del(ctx, sectorIndexBuiltKey).Err(); err != nil {
		return fmt.Errorf("failed to reset sector index: %w", err)
	}
	return d.ensureSectorIndex(ctx)
}

func (d *CachedDirectory) ensureSectorIndex(ctx context.Context) error {
	built, err := d.Redis.Exists(ctx, sectorIndexBuiltKey).Result()
	if err != nil {
		return err
	}
	if built > 0 {
		return nil
	}

	index := map[string][]string{}
	scanned := 0
	err = d.Upstream.EachUser(ctx, func(user *db.DirectoryUser) bool {
		scanned++
		d.storeUser(ctx, user)
		for _, s := range user.Structs.Sectors {
			index[s.Code] = append(index[s.Code], user.ID)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	pipe := d.Redis.TxPipeline()
	for code, users := range index {
		key := sectorIndexKeyPrefix + code
		members := make([]interface{}, len(users))
		for i, id := range users {
			members[i] = id
		}
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, d.TTL)
	}
	pipe.Set(ctx, sectorIndexBuiltKey, time.Now().UTC().Format(time.RFC3339), d.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write sector index: %w", err)
	}

	d.Logger.Info("sector index built", zap.Int("users", scanned), zap.Int("sectors", len(index)))
	return nil
}

func (d *CachedDirectory) storeUser(ctx context.Context, user *db.DirectoryUser) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := d.Redis.Set(ctx, userCacheKeyPrefix+user.ID, raw, d.TTL).Err(); err != nil {
		d.Logger.Warn("directory cache write failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
