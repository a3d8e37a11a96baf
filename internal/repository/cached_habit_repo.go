package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittracker/internal/model"
	"habittracker/pkg/metrics"
)

const defaultHabitCacheTTL = 5 * time.Minute

// tombstoneVersion outranks every real version so a deleted habit cannot be
// refilled by a reader that loaded it just before the delete.
const tombstoneVersion = math.MaxInt64

// storeIfNewer writes the cached document only when it is newer than the
// cached one. KEYS[1] habit key, ARGV version, document, ttl in ms.
var storeIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'doc', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CachedHabitStore is a Redis read-through cache for single-habit lookups.
// Each entry carries the habit version and is only ever replaced by a newer
// one, so a slow reader cannot overwrite what a later Save wrote.
type CachedHabitStore struct {
	next   HabitStore
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedHabitStore(next HabitStore, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedHabitStore {
	if ttl <= 0 {
		ttl = defaultHabitCacheTTL
	}
	return &CachedHabitStore{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func habitCacheKey(id string) string {
	return "habit:doc:" + id
}

func (c *CachedHabitStore) Insert(ctx context.Context, h *model.Habit) error {
	if err := c.next.Insert(ctx, h); err != nil {
		return err
	}
	c.store(ctx, h)
	return nil
}

func (c *CachedHabitStore) FindByID(ctx context.Context, id string) (*model.Habit, error) {
	doc, err := c.rdb.HGet(ctx, habitCacheKey(id), "doc").Result()
	switch {
	case err == nil && doc == "":
		metrics.IncrementCacheLookup("hit")
		return nil, model.ErrHabitNotFound
	case err == nil:
		var h model.Habit
		if jerr := json.Unmarshal([]byte(doc), &h); jerr == nil {
			metrics.IncrementCacheLookup("hit")
			return &h, nil
		}
		c.logger.Warn("Discarding undecodable cached habit", zap.String("habit_id", id))
		c.evict(ctx, id)
	case errors.Is(err, redis.Nil):
		metrics.IncrementCacheLookup("miss")
	default:
		metrics.IncrementCacheLookup("error")
		c.logger.Warn("Habit cache lookup failed", zap.String("habit_id", id), zap.Error(err))
	}

	h, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, h)
	return h, nil
}

func (c *CachedHabitStore) List(ctx context.Context) ([]model.Habit, error) {
	return c.next.List(ctx)
}

// Save writes through: the committed habit replaces the cached copy. A
// failed save leaves the cache alone since the winning writer refreshed it.
func (c *CachedHabitStore) Save(ctx context.Context, h *model.Habit) error {
	if err := c.next.Save(ctx, h); err != nil {
		return err
	}
	c.store(ctx, h)
	return nil
}

func (c *CachedHabitStore) Delete(ctx context.Context, id string) error {
	err := c.next.Delete(ctx, id)
	if err != nil && !errors.Is(err, model.ErrHabitNotFound) {
		return err
	}

	key := habitCacheKey(id)
	_, perr := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "version", strconv.FormatInt(tombstoneVersion, 10), "doc", "")
		pipe.PExpire(ctx, key, c.ttl)
		return nil
	})
	if perr != nil {
		c.logger.Warn("Failed to mark cached habit deleted", zap.String("habit_id", id), zap.Error(perr))
		c.evict(ctx, id)
	}
	return err
}

func (c *CachedHabitStore) Ping(ctx context.Context) error {
	if err := c.next.Ping(ctx); err != nil {
		return err
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *CachedHabitStore) store(ctx context.Context, h *model.Habit) {
	data, err := json.Marshal(h)
	if err != nil {
		return
	}
	err = storeIfNewer.Run(ctx, c.rdb,
		[]string{habitCacheKey(h.ID)},
		h.Version, string(data), c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		c.logger.Warn("Failed to cache habit", zap.String("habit_id", h.ID), zap.Error(err))
		c.evict(ctx, h.ID)
	}
}

func (c *CachedHabitStore) evict(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, habitCacheKey(id)).Err(); err != nil {
		c.logger.Warn("Failed to evict cached habit", zap.String("habit_id", id), zap.Error(err))
	}
}
