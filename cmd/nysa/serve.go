package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nysa-project/nysa/internal/account"
	"github.com/nysa-project/nysa/internal/app"
	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/dashboard"
	"github.com/nysa-project/nysa/internal/identity"
	"github.com/nysa-project/nysa/internal/observability"
	"github.com/nysa-project/nysa/internal/pages"
	"github.com/nysa-project/nysa/internal/platform/cache"
	"github.com/nysa-project/nysa/internal/platform/db"
	"github.com/nysa-project/nysa/internal/profiles"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		return err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	profileService := profiles.NewService(profiles.NewPGRepository(dbpool), logger)

	var (
		provider identity.Provider
		invoker  account.Invoker
	)
	switch cfg.AuthProvider {
	case app.AuthProviderMemory:
		var opts []identity.MemoryOption
		if cfg.AuthAutoConfirm {
			opts = append(opts, identity.WithAutoConfirm())
		}
		memory := identity.NewMemoryProvider(logger, opts...)
		provider = memory
		invoker = account.NewLocalInvoker(memory, profileService)
		logger.Warn("using in-memory identity provider; accounts are lost on restart")
	default:
		provider = identity.NewPlatformProvider(cfg.PlatformURL, cfg.PlatformAnonKey, cfg.PlatformTimeout)
		invoker = account.NewFunctionClient(cfg.PlatformURL, cfg.PlatformAnonKey, cfg.PlatformTimeout)
	}

	notifier := identity.NewNotifier(16)
	defer notifier.Close()
	identityManager := identity.NewManager(provider, notifier, logger, identity.Config{
		MinPasswordLength: cfg.MinPasswordLength,
		SiteURL:           cfg.SiteURL,
		OnFailure: func(op string, kind identity.ErrorKind) {
			metrics.ObserveAuthFailure(op, string(kind))
		},
		OnTransition: func(op string, _, to identity.State) {
			metrics.ObserveAuthTransition(op, string(to))
		},
	})
	unsubscribe := identityManager.Subscribe(func(ev identity.Event) {
		metrics.ObserveAuthEvent(string(ev.Kind))
		logger.Info("auth event", slog.String("event", string(ev.Kind)), slog.String("user_id", ev.UserID))
	})
	defer unsubscribe()

	articleSource, err := newArticleSource(cfg, dbpool, redisClient, logger)
	if err != nil {
		logger.Error("load articles", slog.Any("error", err))
		return err
	}
	articleService := articles.NewService(articleSource, articles.NewRenderer(), logger)

	accountService := account.NewService(invoker, cfg.DeleteFunction, logger, account.WithObserver(metrics.ObserveAccountDeletion))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Identity:        identityManager,
		Profiles:        profileService,
		AuthHandler:     identity.NewHandler(logger, identityManager, templates, csrfManager),
		PagesHandler:    pages.NewHandler(logger, articleService, templates, csrfManager),
		ArticlesHandler: articles.NewHandler(logger, articleService, templates, csrfManager),
		DashboardHandler: dashboard.NewHandler(dashboard.Deps{
			Logger:    logger,
			Identity:  identityManager,
			Profiles:  profileService,
			Articles:  articleService,
			Accounts:  accountService,
			Templates: templates,
			CSRF:      csrfManager,
		}),
		Metrics: metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("auth_provider", cfg.AuthProvider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

func newArticleSource(cfg *app.Config, pool *pgxpool.Pool, client *redis.Client, logger *slog.Logger) (articles.Source, error) {
	switch cfg.ArticlesSource {
	case app.ArticlesDatabase:
		return articles.NewCache(articles.NewPGSource(pool), client, cfg.ArticlesCacheTTL, logger), nil
	case app.ArticlesStatic:
		return articles.NewStaticSource()
	}
	return nil, fmt.Errorf("unknown article source %q", cfg.ArticlesSource)
}
