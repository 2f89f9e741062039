package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-lms/odyssey-lms/internal/app"
	"github.com/odyssey-lms/odyssey-lms/internal/departments"
	jobmetrics "github.com/odyssey-lms/odyssey-lms/internal/jobs"
	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
	"github.com/odyssey-lms/odyssey-lms/internal/platform/db"
	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
	"github.com/odyssey-lms/odyssey-lms/internal/roles"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
	"github.com/odyssey-lms/odyssey-lms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{QueryTimeout: 5 * time.Second})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.DependencyTimeout)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	permCache := rbac.NewPermissionCache(cache.NewRedisStore(redisClient, cfg.DependencyTimeout), cfg.PermissionCacheTTL)
	deptRepo := departments.NewRepository(pool)
	roleService := roles.NewService(roles.NewRepository(pool), permCache, roles.Options{
		CacheSize: cfg.RoleCacheSize,
		CacheTTL:  cfg.RoleCacheTTL,
		Logger:    logger,
	})
	permissions := rbac.NewPermissionService(rbac.ServiceDeps{
		Users:       users.NewService(users.NewRepository(pool)),
		Memberships: deptRepo,
		Departments: deptRepo,
		Rights:      roleService,
		Cache:       permCache,
		Logger:      logger,
		Timeout:     cfg.DependencyTimeout,
	})
	defer permissions.Wait()

	warmJob := jobs.NewPermissionWarmJob(permissions, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionWarm, Handler: warmJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
