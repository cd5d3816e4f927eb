package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hirelane/internal/activity"
	"hirelane/internal/analysis"
	"hirelane/internal/api/middleware"
	"hirelane/internal/auth"
	"hirelane/internal/candidate"
	"hirelane/internal/config"
	"hirelane/internal/notify"
	"hirelane/internal/ratelimit"
	"hirelane/internal/realtime"
)

// ObjectStore 是 API 层用到的对象存储能力。
type ObjectStore interface {
	Presigner
	ResumeStore
	PrefixSweeper
	Probe(ctx context.Context) error
}

// Dependencies 汇总注册路由所需的服务。Redis 可以为空。
type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      redis.UniversalClient
	Auth       *auth.AuthService
	Candidates *candidate.Service
	Analysis   *analysis.Service
	Activity   *activity.Recorder
	Notify     *notify.Service
	Storage    ObjectStore
	Source     realtime.Source
	Scanner    Scanner
	Limiter    ratelimit.Limiter
	Logger     *slog.Logger
}

// RegisterRoutes 注册 /v1 下的全部路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, logger, AuthOptions{
		LockThreshold: cfg.Auth.LoginLockThreshold,
		LockTTL:       cfg.Auth.LoginLockTTL,
		CookieDomain:  cfg.Auth.CookieDomain,
	})
	jobHandler := NewJobHandler(deps.DB, deps.Candidates, deps.Activity, deps.Storage, logger)
	candidateHandler := NewCandidateHandler(deps.Candidates, deps.Storage, logger)
	applyHandler := NewApplyHandler(deps.DB, deps.Candidates, deps.Storage, deps.Scanner, cfg.API.MaxUploadBytes, logger)
	analysisHandler := NewAnalysisHandler(deps.Analysis, logger)
	activityHandler := NewActivityHandler(deps.Activity, logger)
	notificationHandler := NewNotificationHandler(deps.Notify, logger)
	adminHandler := NewAdminHandler(deps.DB, jobHandler, deps.Analysis, logger)
	wsHandler := NewWsHandler(deps.DB, deps.Source, deps.Auth, deps.Candidates, deps.Notify, logger, cfg.API.AllowedOrigins)
	connectivityHandler := NewConnectivityHandler(probes(deps), 3*time.Second, logger)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		authGroup.Use(ratelimit.Middleware(deps.Limiter, "auth", logger))
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		public := v1.Group("/public")
		public.Use(ratelimit.Middleware(deps.Limiter, "apply", logger))
		{
			public.POST("/jobs/:id/apply", applyHandler.Apply)
		}

		authed := v1.Group("")
		authed.Use(authMiddleware)
		{
			authed.GET("/jobs", jobHandler.List)
			authed.POST("/jobs", jobHandler.Create)
			authed.GET("/jobs/:id", jobHandler.Get)
			authed.PATCH("/jobs/:id", jobHandler.Update)
			authed.DELETE("/jobs/:id", jobHandler.Delete)
			authed.GET("/jobs/:id/stats", jobHandler.Stats)
			authed.GET("/jobs/:id/candidates", jobHandler.Candidates)
			authed.GET("/jobs/:id/candidates/export", jobHandler.Export)

			authed.POST("/candidates/bulk/status", candidateHandler.BulkStatus)
			authed.POST("/candidates/bulk/tags", candidateHandler.BulkTags)
			authed.POST("/candidates/bulk/delete", candidateHandler.BulkDelete)
			authed.GET("/candidates/:id", candidateHandler.Get)
			authed.DELETE("/candidates/:id", candidateHandler.Delete)
			authed.GET("/candidates/:id/resume", candidateHandler.ResumeURL)
			authed.PUT("/candidates/:id/tags", candidateHandler.UpdateTags)
			authed.POST("/candidates/:id/analyze", analysisHandler.Analyze)
			authed.POST("/candidates/:id/analyze/queue", analysisHandler.Enqueue)

			authed.GET("/tags", candidateHandler.ListTags)
			authed.GET("/quota", analysisHandler.Quota)
			authed.GET("/dashboard/stats", candidateHandler.DashboardStats)
			authed.GET("/activity", activityHandler.List)
			authed.GET("/notifications/preferences", notificationHandler.Get)
			authed.PUT("/notifications/preferences", notificationHandler.Update)
			authed.GET("/connectivity", connectivityHandler.Check)
		}

		admin := v1.Group("/admin")
		admin.Use(authMiddleware, middleware.RequireAdmin())
		{
			admin.GET("/users", adminHandler.Users)
			admin.PUT("/users/:id/quota", adminHandler.SetQuota)
			admin.GET("/jobs", adminHandler.Jobs)
			admin.DELETE("/jobs/:id", adminHandler.DeleteJob)
		}
	}
}

func probes(deps Dependencies) map[string]Probe {
	out := map[string]Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	out["redis"] = func(ctx context.Context) error {
		if deps.Redis == nil {
			return errors.New("redis not configured")
		}
		return deps.Redis.Ping(ctx).Err()
	}
	if deps.Storage != nil {
		out["storage"] = deps.Storage.Probe
	}
	return out
}
