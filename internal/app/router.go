package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/meridian-gov/meridian/internal/audit/http"
	"github.com/meridian-gov/meridian/internal/auth"
	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/cases"
	"github.com/meridian-gov/meridian/internal/documents"
	"github.com/meridian-gov/meridian/internal/observability"
	"github.com/meridian-gov/meridian/internal/shared"
	"github.com/meridian-gov/meridian/internal/users"
	"github.com/meridian-gov/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authz          authz.Middleware

	AuthHandler      *auth.Handler
	CasesHandler     *cases.Handler
	DocumentsHandler *documents.Handler
	UsersHandler     *users.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
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

	// Everything under /api requires an authenticated, resolvable
	// principal. Per-resource decisions happen in the services.
	r.Route("/api", func(api chi.Router) {
		api.Use(params.Authz.WithPrincipal)
		api.Use(params.Authz.RequireAuthenticated)

		if params.CasesHandler != nil {
			api.Route("/cases", params.CasesHandler.MountRoutes)
		}
		if params.DocumentsHandler != nil {
			api.Route("/documents", params.DocumentsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			api.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			api.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
