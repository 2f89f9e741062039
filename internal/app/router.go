package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-lms/odyssey-lms/internal/auth"
	"github.com/odyssey-lms/odyssey-lms/internal/departments"
	"github.com/odyssey-lms/odyssey-lms/internal/escalation"
	"github.com/odyssey-lms/odyssey-lms/internal/observability"
	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
	"github.com/odyssey-lms/odyssey-lms/internal/roles"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
	"github.com/odyssey-lms/odyssey-lms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	DepartmentsHandler   *departments.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	EscalationHandler    *escalation.Handler
	EscalationMiddleware escalation.Middleware
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything below requires a verified access token. The admin token,
	// when present, is attached after the identity so ownership can be checked.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthHandler.Authenticate)
		if params.EscalationMiddleware.Manager != nil {
			r.Use(params.EscalationMiddleware.Attach)
		}

		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.DepartmentsHandler != nil {
			r.Route("/departments", params.DepartmentsHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/authz", params.PermissionsHandler.MountRoutes)
		}
		if params.EscalationHandler != nil {
			r.Route("/admin", params.EscalationHandler.MountRoutes)
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
