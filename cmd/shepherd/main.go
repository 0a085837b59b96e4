package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shepherd-cms/shepherd/internal/app"
	"github.com/shepherd-cms/shepherd/internal/audit"
	"github.com/shepherd-cms/shepherd/internal/auth"
	"github.com/shepherd-cms/shepherd/internal/directory"
	"github.com/shepherd-cms/shepherd/internal/observability"
	"github.com/shepherd-cms/shepherd/internal/platform/cache"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
	"github.com/shepherd-cms/shepherd/internal/rbac"
	"github.com/shepherd-cms/shepherd/internal/shared"
	"github.com/shepherd-cms/shepherd/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "shepherd_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	principalRepo := rbac.NewRepository(dbpool)
	claimsCache := rbac.NewClaimsCache(redisClient, cfg.ClaimsTTL)
	resolver := rbac.NewResolver(principalRepo, claimsCache, logger)
	evaluator := rbac.NewEvaluator(resolver)
	rbacMiddleware := rbac.Middleware{Evaluator: evaluator, Logger: logger, Metrics: metrics}

	directoryRepo := directory.NewRepository(dbpool)
	directoryService := directory.NewService(directoryRepo)
	directoryHandler := directory.NewHandler(logger, directoryService, rbacMiddleware)

	rolesService := rbac.NewService(principalRepo, resolver, directoryService, logger)
	rolesHandler := rbac.NewHandler(logger, rolesService)

	sessionRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(principalRepo, sessionRepo)
	authHandler := auth.NewHandler(logger, authService, resolver, sessionManager, csrfManager)

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		RolesHandler:     rolesHandler,
		AuditHandler:     auditHandler,
		DirectoryHandler: directoryHandler,
		JobsHandler:      jobsHandler,
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
}
