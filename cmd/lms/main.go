package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-lms/odyssey-lms/cmd/lms/cli"
	"github.com/odyssey-lms/odyssey-lms/internal/app"
	"github.com/odyssey-lms/odyssey-lms/internal/auth"
	"github.com/odyssey-lms/odyssey-lms/internal/departments"
	"github.com/odyssey-lms/odyssey-lms/internal/escalation"
	"github.com/odyssey-lms/odyssey-lms/internal/observability"
	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
	"github.com/odyssey-lms/odyssey-lms/internal/platform/db"
	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
	"github.com/odyssey-lms/odyssey-lms/internal/roles"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
	"github.com/odyssey-lms/odyssey-lms/jobs"
)

const usage = `usage: lms [command]

commands:
  serve                               run the HTTP API (default)
  set-admin-credential --user <id>    read an escalation credential from stdin and store it
  warm --user <id> [--user <id>...]   enqueue permission cache warm-ups
  queue-stats                         print the authz queue state
`

type userList []string

func (u *userList) String() string { return fmt.Sprint([]string(*u)) }
func (u *userList) Set(v string) error { *u = append(*u, v); return nil }

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "set-admin-credential":
		os.Exit(setAdminCredential(ctx, cfg, logger, args))
	case "warm":
		err = warm(ctx, cfg, args)
	case "queue-stats":
		err = queueStats(ctx, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func connect(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{QueryTimeout: 5 * time.Second})
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.DependencyTimeout)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, nil, err
	}
	return pool, redisClient, nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, redisClient, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	store := cache.NewRedisStore(redisClient, cfg.DependencyTimeout)
	permCache := rbac.NewPermissionCache(store, cfg.PermissionCacheTTL)

	usersService := users.NewService(users.NewRepository(pool))
	deptRepo := departments.NewRepository(pool)
	roleService := roles.NewService(roles.NewRepository(pool), permCache, roles.Options{
		CacheSize: cfg.RoleCacheSize,
		CacheTTL:  cfg.RoleCacheTTL,
		Observer:  metrics,
		Audit:     auditLogger,
		Logger:    logger,
	})

	permissions := rbac.NewPermissionService(rbac.ServiceDeps{
		Users:       usersService,
		Memberships: deptRepo,
		Departments: deptRepo,
		Rights:      roleService,
		Cache:       permCache,
		Logger:      logger,
		Metrics:     metrics,
		Timeout:     cfg.DependencyTimeout,
	})
	defer permissions.Wait()
	authorizer := rbac.NewAuthorizer(permissions, logger, metrics)
	rbacMiddleware := rbac.Middleware{Authorizer: authorizer, Logger: logger}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	switcher := departments.NewSwitcher(usersService, deptRepo, roleService, logger)
	memberships := departments.NewMembershipService(deptRepo, roleService, permissions, jobClient, logger)

	manager, err := escalation.NewManager(escalation.NewRepository(pool), roleService, store, escalation.Config{
		TokenSecret:    []byte(cfg.EscalationTokenSecret),
		Pepper:         cfg.EscalationPepper,
		DefaultTimeout: cfg.EscalationDefaultTimeout,
		Audit:          auditLogger,
	}, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenIssuer([]byte(cfg.AccessTokenSecret), cfg.AccessTokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokens, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AuthHandler:          auth.NewHandler(logger, authService),
		UsersHandler:         users.NewHandler(logger, usersService),
		DepartmentsHandler:   departments.NewHandler(logger, switcher, memberships, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, roleService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, authorizer),
		EscalationHandler:    escalation.NewHandler(logger, manager),
		EscalationMiddleware: escalation.Middleware{Manager: manager, Logger: logger},
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func setAdminCredential(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("set-admin-credential", flag.ContinueOnError)
	userID := fs.String("user", "", "user id of the elevated account")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, redisClient, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	defer redisClient.Close()

	manager, err := escalation.NewManager(escalation.NewRepository(pool), nil,
		cache.NewRedisStore(redisClient, cfg.DependencyTimeout), escalation.Config{
			TokenSecret:    []byte(cfg.EscalationTokenSecret),
			Pepper:         cfg.EscalationPepper,
			DefaultTimeout: cfg.EscalationDefaultTimeout,
		}, logger)
	if err != nil {
		logger.Error("init escalation manager", slog.Any("error", err))
		return 1
	}
	return cli.CredentialCommand(ctx, manager, cli.CredentialOptions{UserID: *userID})
}

func warm(ctx context.Context, cfg *app.Config, args []string) error {
	fs := flag.NewFlagSet("warm", flag.ContinueOnError)
	var ids userList
	fs.Var(&ids, "user", "user id to warm (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("warm: at least one --user is required")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()
	return jobsCLI.Warm(ctx, ids...)
}

func queueStats(ctx context.Context, cfg *app.Config) error {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}
