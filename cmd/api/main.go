package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"hirelane/internal/activity"
	"hirelane/internal/analysis"
	"hirelane/internal/api"
	"hirelane/internal/auth"
	"hirelane/internal/broadcast"
	"hirelane/internal/candidate"
	"hirelane/internal/config"
	"hirelane/internal/database"
	"hirelane/internal/notify"
	"hirelane/internal/ratelimit"
	"hirelane/internal/realtime"
	"hirelane/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("api bootstrapped with db host=%s port=%d db=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	log.Printf("database ready")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	authService, err := auth.NewAuthServiceFromConfig(cfg.Auth)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	provider, err := analysis.NewProvider(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("init ai provider: %v", err)
	}
	if provider != nil {
		defer provider.Close()
	} else {
		log.Printf("ai provider disabled, synchronous analysis unavailable")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	recorder := activity.NewRecorder(db)
	broadcaster := broadcast.NewBroadcaster(broadcast.NewRedisPublisher(redisClient), cfg.Broadcast.Timeout, logger)
	candidates := candidate.NewService(db, storageClient, recorder, broadcaster, logger)
	analysisService := analysis.NewService(db, provider, storageClient, recorder, broadcaster, asynqClient, logger, analysis.Options{
		DefaultAllotment: cfg.Quota.DefaultAllotment,
		MaxDuration:      cfg.AI.MaxDuration,
		MaxRetry:         cfg.Worker.MaxRetry,
	})

	limiter := ratelimit.New(cfg.RateLimit, redisClient, logger)
	ratelimit.StartSweeper(ctx, limiter, time.Minute)

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:     cfg,
		DB:         db,
		Redis:      redisClient,
		Auth:       authService,
		Candidates: candidates,
		Analysis:   analysisService,
		Activity:   recorder,
		Notify:     notify.NewService(notify.NewGormStore(db)),
		Storage:    storageClient,
		Source:     realtime.NewRedisSource(redisClient),
		Scanner:    api.NewScanner(cfg.Clamd.Addr),
		Limiter:    limiter,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", slog.Any("error", err))
	}
}
