// Package main runs the background worker: session teardown jobs and the
// expired-session sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noor-canvas/backend/config"
	"github.com/noor-canvas/backend/internal/participants"
	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/internal/worker"
	"github.com/noor-canvas/backend/pkg/database"
	"github.com/noor-canvas/backend/pkg/queue"
	"github.com/noor-canvas/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := sessions.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)

	processor := worker.NewTeardownProcessor(participantRepo, jobQueue, logger)
	sweeper := worker.NewExpirySweeper(sessionRepo, pubsub, jobQueue,
		time.Duration(cfg.Worker.ExpirySweepSec)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
