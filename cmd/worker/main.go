package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "habittracker/contracts/mq"
	"habittracker/internal/config"
	"habittracker/internal/httpserver"
	"habittracker/internal/mqhandler"
	"habittracker/internal/repository"
	pkgconfig "habittracker/pkg/config"
	"habittracker/pkg/logger"
	"habittracker/pkg/mq"
	"habittracker/pkg/redis"
	"habittracker/pkg/util"
)

func main() {
	cfg, err := config.Load(pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	log.Info("Starting streak worker...",
		zap.String("env", pkgconfig.GetConfigEnv()),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("mq_url", cfg.MQ.URL),
	)
	if cfg.MQ.URL == "" || cfg.Redis.Addr == "" {
		log.Fatal("Worker requires mq.url and redis.addr")
	}
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("Worker is using the in-memory store and will not see habits written by the api")
	}

	ctx := context.Background()

	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Redis connection established")

	// read straight from the store; the cache is only for the api
	store, closeStore, err := repository.Open(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal("Failed to open habit store", zap.Error(err))
	}
	defer closeStore()

	board := repository.NewRedisStreakBoard(rdb, log)
	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	policy := mq.RetryPolicy{
		Counter:    util.NewRetryCounter(rdb, time.Hour),
		MaxRetries: cfg.Worker.MaxRetries,
	}

	dlq, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlq.Close()

	completionHandler := mqhandler.NewCompletionUpdatedHandler(store, board, deduper, log)
	deletedHandler := mqhandler.NewHabitDeletedHandler(board, deduper, log)

	bindings := []struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}{
		{"habit.completion.updated.q", mqcontracts.RoutingHabitCompletionUpdated, completionHandler.Handle},
		{"habit.deleted.q", mqcontracts.RoutingHabitDeleted, deletedHandler.Handle},
	}

	consumers := make([]*mq.Consumer, 0, len(bindings))
	for _, b := range bindings {
		log.Info("Initializing MQ consumer...",
			zap.String("queue", b.queue),
			zap.String("routing_key", b.routingKey),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, b.queue, b.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", b.queue), zap.Error(err))
		}
		defer consumer.Close()

		consumer.SetHandler(b.handle)
		consumer.SetFailureHandling(dlq, policy)
		consumers = append(consumers, consumer)

		go func(queue string) {
			log.Info("Starting consumer", zap.String("queue", queue))
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("Consumer failed", zap.String("queue", queue), zap.Error(err))
			}
		}(b.queue)
	}

	checks := []httpserver.ReadinessCheck{
		{Name: "store", Check: store.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "mq", Check: func(context.Context) error {
			for _, c := range consumers {
				if !c.IsConnected() {
					return errors.New("consumer disconnected")
				}
			}
			return nil
		}},
	}
	srv := &http.Server{
		Addr:    cfg.Worker.Port,
		Handler: httpserver.NewWorkerRouter(log, checks).Engine,
	}
	go func() {
		log.Info("Worker probe server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Probe server failed", zap.Error(err))
		}
	}()

	log.Info("Streak worker is running", zap.Int("consumers", len(consumers)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down streak worker gracefully...")

	log.Info("Stopping MQ consumers...")
	for _, c := range consumers {
		c.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Probe server shutdown error", zap.Error(err))
	}

	log.Info("Streak worker shutdown complete")
}
