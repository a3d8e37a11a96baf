package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"habittracker/internal/config"
	"habittracker/internal/handler"
	"habittracker/internal/httpserver"
	"habittracker/internal/repository"
	habitsvc "habittracker/internal/service/habit"
	"habittracker/pkg/circuitbreaker"
	pkgconfig "habittracker/pkg/config"
	"habittracker/pkg/logger"
	"habittracker/pkg/mq"
	"habittracker/pkg/redis"
)

func main() {
	cfg, err := config.Load(pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	log.Info("Starting habit api...",
		zap.String("env", pkgconfig.GetConfigEnv()),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("port", cfg.Server.Port),
	)

	ctx := context.Background()
	checks := []httpserver.ReadinessCheck{}

	// Redis is optional for the api: without it there is no cache and no leaderboard.
	var (
		rdb   *goredis.Client
		board repository.StreakBoard
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		board = repository.NewRedisStreakBoard(rdb, log)
		checks = append(checks, httpserver.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	var cache goredis.Cmdable
	if rdb != nil {
		cache = rdb
	}
	store, closeStore, err := repository.Open(ctx, cfg, cache, log)
	if err != nil {
		log.Fatal("Failed to open habit store", zap.Error(err))
	}
	defer closeStore()
	checks = append(checks, httpserver.ReadinessCheck{Name: "store", Check: store.Ping})

	var events habitsvc.EventPublisher = habitsvc.NopPublisher{}
	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		events = habitsvc.NewGuardedPublisher(publisher, circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()), log)
		log.Info("MQ publisher ready")
	} else {
		log.Warn("mq.url not set, habit events will not be published")
	}

	svc := habitsvc.NewService(store, events, board, cfg.Progress.DefaultWindowDays, log)
	router := httpserver.NewRouter(handler.NewHabitHandler(svc, log), log, httpserver.Options{
		JWTSecret:   cfg.Auth.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Checks:      checks,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down habit api gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("habit api shutdown complete")
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
