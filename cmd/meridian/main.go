package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-crm/meridian-authz/internal/app"
	"github.com/meridian-crm/meridian-authz/internal/audit"
	"github.com/meridian-crm/meridian-authz/internal/authz"
	"github.com/meridian-crm/meridian-authz/internal/grants"
	"github.com/meridian-crm/meridian-authz/internal/observability"
	"github.com/meridian-crm/meridian-authz/internal/platform/cache"
	"github.com/meridian-crm/meridian-authz/internal/platform/db"
	"github.com/meridian-crm/meridian-authz/internal/principals"
	"github.com/meridian-crm/meridian-authz/internal/roles"
	"github.com/meridian-crm/meridian-authz/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Redis only backs the best-effort change feed here.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := authz.DefaultRegistry()
	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	changeFeed := shared.NewChangeFeed(redisClient, cfg.ChangeFeedChannel, logger)

	principalsRepo := principals.NewRepository(pool)
	rolesRepo := roles.NewRepository(pool)
	grantsRepo := grants.NewRepository(pool)

	warnUnknownPairs(ctx, logger, registry, rolesRepo)

	rolesService := roles.NewService(rolesRepo, registry, auditLogger, changeFeed)
	grantsService := grants.NewService(grantsRepo, principalsRepo, registry, auditLogger, changeFeed)
	resolver := authz.NewService(principalsRepo, grantsRepo, logger, metrics)
	auditService := audit.NewService(audit.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		AuthzHandler:  authz.NewHandler(logger, resolver),
		RolesHandler:  roles.NewHandler(logger, rolesService),
		GrantsHandler: grants.NewHandler(logger, grantsService),
		AuditHandler:  audit.NewHandler(logger, auditService),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// warnUnknownPairs surfaces stored role permissions that the registry no
// longer knows. They would silently deny at check time; the log makes the
// drift visible at startup instead.
func warnUnknownPairs(ctx context.Context, logger *slog.Logger, registry *authz.Registry, repo *roles.Repository) {
	stored, err := repo.List(ctx)
	if err != nil {
		logger.Warn("registry drift check skipped", slog.Any("error", err))
		return
	}
	for _, role := range stored {
		for _, perm := range role.Permissions {
			for _, action := range perm.Actions {
				if err := registry.Validate(perm.Resource, action); err != nil {
					logger.Warn("stored permission not in registry",
						slog.String("role", role.Name),
						slog.String("resource", perm.Resource),
						slog.String("action", action))
				}
			}
		}
	}
}
