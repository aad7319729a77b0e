// Package main runs the study monitoring HTTP server with WebSocket
// tracking and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/study-eyes/backend/config"
	"github.com/study-eyes/backend/internal/auth"
	"github.com/study-eyes/backend/internal/camera"
	"github.com/study-eyes/backend/internal/classify"
	"github.com/study-eyes/backend/internal/landmarks"
	"github.com/study-eyes/backend/internal/middleware"
	"github.com/study-eyes/backend/internal/realtime"
	"github.com/study-eyes/backend/internal/sessions"
	"github.com/study-eyes/backend/internal/tracking"
	"github.com/study-eyes/backend/pkg/database"
	"github.com/study-eyes/backend/pkg/queue"
	"github.com/study-eyes/backend/pkg/redis"
	"github.com/study-eyes/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	// Models: restore the mirrored generation on a fresh deployment,
	// else load the local one, else bootstrap from synthetic data so
	// classification works from the first session.
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
	logger.Info("models ready",
		zap.String("state", string(ensemble.State())),
		zap.Int("version", ensemble.Version()))

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	registry := tracking.NewRegistry(logger)

	cameraCfg := camera.Config{
		Candidates:       camera.DefaultCandidates(cfg.Camera.Indices),
		Width:            cfg.Camera.Width,
		Height:           cfg.Camera.Height,
		FPS:              cfg.Camera.FPS,
		WarmupFrames:     cfg.Camera.WarmupFrames,
		ProbeAttempts:    cfg.Camera.ProbeAttempts,
		MinSuccessRatio:  cfg.Camera.MinSuccessRatio,
		MinLuminanceMean: cfg.Camera.MinLuminanceMean,
		MinLuminanceStd:  cfg.Camera.MinLuminanceStd,
		MaxFailedFrames:  cfg.Camera.MaxFailedFrames,
	}
	// Per-session device factory. Probe or sidecar failure is not an
	// error: the session runs synthetic instead.
	devices := func(ctx context.Context) (*camera.Source, landmarks.Extractor) {
		source, err := camera.Probe(ctx, cameraCfg, camera.OpenDevice, logger)
		if err != nil {
			logger.Warn("camera probe failed, using synthetic data", zap.Error(err))
			return nil, nil
		}
		extractor, err := landmarks.NewWorker(landmarks.WorkerConfig{
			Command:             cfg.FaceMesh.WorkerCommand,
			Args:                cfg.FaceMesh.WorkerArgs,
			DetectionConfidence: cfg.FaceMesh.DetectionConfidence,
			TrackingConfidence:  cfg.FaceMesh.TrackingConfidence,
		}, logger)
		if err != nil {
			logger.Warn("face mesh worker failed, using synthetic data", zap.Error(err))
			source.Close()
			return nil, nil
		}
		return source, extractor
	}

	sessionRepo := sessions.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo, registry, ensemble, hub, devices, cfg.Tracking, logger)
	sessionHandler := sessions.NewHandler(sessionSvc, sessionRepo)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	modelHandler := classify.NewHandler(ensemble, jobQueue)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{
			"status":          "ok",
			"active_sessions": registry.ActiveCount(),
			"model_state":     ensemble.State(),
		})
	})

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/sessions", sessionHandler.Start)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/active", sessionHandler.Active)
		api.GET("/sessions/live", middleware.RequireRole("admin"), sessionHandler.Live)
		api.DELETE("/sessions/active", sessionHandler.Stop)
		api.GET("/sessions/:id/snapshots", sessionHandler.Snapshots)

		api.GET("/models", modelHandler.Info)
		api.POST("/models/retrain", middleware.RequireRole("admin"), modelHandler.Retrain)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate, sessionSvc))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Stop tracking loops first so final snapshots flush before the
	// pool closes.
	sessionSvc.Shutdown(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
