// Command worker consumes background tasks raised by the sale engine.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"retailpos/internal/config"
	"retailpos/internal/jobs"
	"retailpos/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.RedisAddr == "" {
		logger.Fatal("worker needs REDIS_ADDR", zap.Error(errors.New("redis not configured")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
	})
	logger.Info("worker started", zap.String("redis", cfg.RedisAddr), zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
	logger.Info("worker stopped")
}
