package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittracker/internal/config"
	"habittracker/pkg/db"
	"habittracker/pkg/mongodb"
)

// Open builds the HabitStore selected by cfg.Storage.Driver. When rdb is
// non-nil the store is wrapped in a read-through cache. The returned func
// releases the underlying connection.
func Open(ctx context.Context, cfg *config.Config, rdb redis.Cmdable, logger *zap.Logger) (HabitStore, func(), error) {
	var (
		store   HabitStore
		closeFn = func() {}
	)

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := db.NewConnection(ctx, cfg.DB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := NewPostgresHabitStore(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store, closeFn = pg, pool.Close

	case config.DriverMongo:
		client, err := mongodb.NewClient(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("Failed to disconnect mongo", zap.Error(err))
			}
		}
		m := NewMongoHabitStore(client, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
		if err := m.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		store, closeFn = m, disconnect

	case config.DriverMemory:
		logger.Warn("Using in-memory habit store; data will not survive a restart")
		store = NewMemoryHabitStore(logger)

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if rdb != nil {
		store = NewCachedHabitStore(store, rdb, cfg.Redis.CacheTTL, logger)
	}

	logger.Info("Habit store ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("cached", rdb != nil),
	)
	return store, closeFn, nil
}
