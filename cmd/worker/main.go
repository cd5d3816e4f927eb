package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"hirelane/internal/activity"
	"hirelane/internal/analysis"
	"hirelane/internal/broadcast"
	"hirelane/internal/config"
	"hirelane/internal/database"
	"hirelane/internal/metrics"
	"hirelane/internal/storage"
	"hirelane/internal/tasks"
	"hirelane/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	provider, err := analysis.NewProvider(context.Background(), cfg.AI)
	if err != nil {
		log.Fatalf("init ai provider: %v", err)
	}
	if provider == nil {
		log.Fatalf("worker requires an ai provider (AI_PROVIDER)")
	}
	defer provider.Close()

	publisher := broadcast.NewRedisPublisher(redisClient)
	recorder := activity.NewRecorder(db)
	broadcaster := broadcast.NewBroadcaster(publisher, cfg.Broadcast.Timeout, logger)
	analysisService := analysis.NewService(db, provider, storageClient, recorder, broadcaster, nil, logger, analysis.Options{
		DefaultAllotment: cfg.Quota.DefaultAllotment,
		MaxDuration:      cfg.AI.MaxDuration,
		MaxRetry:         cfg.Worker.MaxRetry,
	})
	go serveMetrics(cfg.Worker.MetricsPort, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCandidateAnalyze, worker.NewAnalyzeTaskHandler(analysisService, publisher, logger))

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}

func serveMetrics(port int, logger *slog.Logger) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("worker metrics listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("worker metrics server stopped", slog.Any("error", err))
	}
}
