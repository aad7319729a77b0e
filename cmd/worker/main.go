// Package main runs the background job worker (model retraining from
// persisted session data).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/sessions"
	"github.com/study-eyes/backend/internal/worker"
	"github.com/study-eyes/backend/pkg/database"
	"github.com/study-eyes/backend/pkg/queue"
	"github.com/study-eyes/backend/pkg/redis"
	"github.com/study-eyes/backend/pkg/storage"
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

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.ModelsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ModelsBucket:    cfg.AWS.ModelsBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 mirroring disabled", zap.Error(err))
			s3Client = nil
		}
	}

	modelStore := classify.NewStore(cfg.Models.Dir, logger)
	ensemble := classify.NewEnsemble(logger)
	if s3Client != nil && !modelStore.HasArtifacts() {
		if err := s3Client.RestoreLatest(ctx, modelStore.ArtifactPaths()); err != nil {
			logger.Warn("artifact restore from mirror failed, will bootstrap", zap.Error(err))
		}
	}
	if err := ensemble.LoadOrBootstrap(modelStore, cfg.Models); err != nil {
		logger.Fatal("models", zap.Error(err))
	}

	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewRetrainProcessor(sessionRepo, ensemble, modelStore, cfg.Models, s3Client, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
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
