package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/grants"
	"github.com/vantage-dg/vantage/internal/observability"
	"github.com/vantage-dg/vantage/internal/roles"
	"github.com/vantage-dg/vantage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AccessHandler  *access.Handler
	GrantsHandler  *grants.Handler
	RolesHandler   *roles.Handler
	JobHandler     *jobs.Handler
	GateMiddleware access.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Vantage defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.GrantsHandler != nil {
			params.GrantsHandler.MountCatalogRoutes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(params.GateMiddleware.WithActor)

			if params.GrantsHandler != nil {
				params.GrantsHandler.MountActorRoutes(r)
			}
			if params.AccessHandler != nil {
				r.Route("/session", params.AccessHandler.MountRoutes)
			}
			if params.RolesHandler != nil {
				r.Route("/roles/admin", params.RolesHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
