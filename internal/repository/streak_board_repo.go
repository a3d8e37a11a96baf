package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittracker/internal/model"
)

const streakRankingKey = "habit:streaks:current"

func streakSnapshotKey(id string) string {
	return "habit:streak:" + id
}

// StreakBoard is the streak projection kept by the worker.
type StreakBoard interface {
	Record(ctx context.Context, s model.StreakSnapshot) error
	Remove(ctx context.Context, habitID string) error
	// Get reports false when the habit has no recorded snapshot.
	Get(ctx context.Context, habitID string) (model.StreakSnapshot, bool, error)
	Top(ctx context.Context, limit int) ([]model.StreakSnapshot, error)
}

// RedisStreakBoard ranks habits by current streak in a sorted set and keeps
// the full snapshot in a hash per habit.
type RedisStreakBoard struct {
	rdb    redis.Cmdable
	logger *zap.Logger
}

func NewRedisStreakBoard(rdb redis.Cmdable, logger *zap.Logger) *RedisStreakBoard {
	return &RedisStreakBoard{rdb: rdb, logger: logger}
}

func (b *RedisStreakBoard) Record(ctx context.Context, s model.StreakSnapshot) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, streakRankingKey, redis.Z{Score: float64(s.Current), Member: s.HabitID})
		pipe.HSet(ctx, streakSnapshotKey(s.HabitID),
			"name", s.Name,
			"current", s.Current,
			"max", s.Max,
			"updated_at", s.UpdatedAt.UTC().Format(time.RFC3339),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record streak: %w", err)
	}
	b.logger.Debug("Streak recorded",
		zap.String("habit_id", s.HabitID),
		zap.Int("current", s.Current),
		zap.Int("max", s.Max),
	)
	return nil
}

func (b *RedisStreakBoard) Remove(ctx context.Context, habitID string) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, streakRankingKey, habitID)
		pipe.Del(ctx, streakSnapshotKey(habitID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove streak: %w", err)
	}
	return nil
}

func (b *RedisStreakBoard) Get(ctx context.Context, habitID string) (model.StreakSnapshot, bool, error) {
	fields, err := b.rdb.HGetAll(ctx, streakSnapshotKey(habitID)).Result()
	if err != nil {
		return model.StreakSnapshot{}, false, fmt.Errorf("load streak: %w", err)
	}
	if len(fields) == 0 {
		return model.StreakSnapshot{}, false, nil
	}
	return snapshotFromHash(habitID, fields), true, nil
}

// Top returns up to limit snapshots, longest current streak first.
func (b *RedisStreakBoard) Top(ctx context.Context, limit int) ([]model.StreakSnapshot, error) {
	if limit <= 0 {
		return []model.StreakSnapshot{}, nil
	}

	ids, err := b.rdb.ZRevRange(ctx, streakRankingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("rank streaks: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = b.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, streakSnapshotKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load streaks: %w", err)
	}

	out := make([]model.StreakSnapshot, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, snapshotFromHash(id, fields))
	}
	return out, nil
}

func snapshotFromHash(id string, fields map[string]string) model.StreakSnapshot {
	s := model.StreakSnapshot{HabitID: id, Name: fields["name"]}
	s.Current, _ = strconv.Atoi(fields["current"])
	s.Max, _ = strconv.Atoi(fields["max"])
	s.UpdatedAt, _ = time.Parse(time.RFC3339, fields["updated_at"])
	return s
}
