package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/dashboard"
	"github.com/nysa-project/nysa/internal/identity"
	"github.com/nysa-project/nysa/internal/observability"
	"github.com/nysa-project/nysa/internal/pages"
	"github.com/nysa-project/nysa/internal/platform/httpx"
	"github.com/nysa-project/nysa/internal/profiles"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
	"github.com/nysa-project/nysa/web"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Identity         *identity.Manager
	Profiles         *profiles.Service
	AuthHandler      *identity.Handler
	PagesHandler     *pages.Handler
	ArticlesHandler  *articles.Handler
	DashboardHandler *dashboard.Handler
	Metrics          *observability.Metrics
	HealthChecks     map[string]HealthCheck
}

// NewRouter constructs the chi.Router with Nysa defaults.
func NewRouter(params RouterParams) http.Handler {
	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Templates:      params.Templates,
		Metrics:        params.Metrics,
	}

	r := chi.NewRouter()
	for _, mw := range BaseMiddleware(mwCfg) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	// Everything below runs with a browser session, CSRF protection and the
	// signed-in member resolved.
	siteStack := append(MiddlewareStack(mwCfg), params.Identity.Loader, params.Profiles.Navigation)

	r.Group(func(r chi.Router) {
		r.Use(siteStack...)

		params.PagesHandler.MountRoutes(r)
		params.ArticlesHandler.MountRoutes(r)
		r.Route("/api", params.ArticlesHandler.MountAPI)
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	})

	r.NotFound(chi.Chain(siteStack...).HandlerFunc(params.PagesHandler.NotFound).ServeHTTP)

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for one hour in the browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
