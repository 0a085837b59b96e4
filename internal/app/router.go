package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shepherd-cms/shepherd/internal/audit"
	"github.com/shepherd-cms/shepherd/internal/auth"
	"github.com/shepherd-cms/shepherd/internal/directory"
	"github.com/shepherd-cms/shepherd/internal/observability"
	"github.com/shepherd-cms/shepherd/internal/rbac"
	"github.com/shepherd-cms/shepherd/internal/shared"
	"github.com/shepherd-cms/shepherd/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	RolesHandler     *rbac.Handler
	AuditHandler     *audit.Handler
	DirectoryHandler *directory.Handler
	JobsHandler      *jobs.Handler
	RBACMiddleware   rbac.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Shepherd defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/admin", func(r chi.Router) {
		r.Route("/roles", params.RolesHandler.MountRoutes)
		if params.AuditHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireLevel(rbac.LevelAdmin))
				r.Route("/audit", params.AuditHandler.MountRoutes)
			})
		}
	})

	if params.DirectoryHandler != nil {
		r.Route("/directory", params.DirectoryHandler.MountRoutes)
	}

	if params.JobsHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireLevel(rbac.LevelAdmin))
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
