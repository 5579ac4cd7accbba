package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-crm/meridian-authz/internal/audit"
	"github.com/meridian-crm/meridian-authz/internal/authz"
	"github.com/meridian-crm/meridian-authz/internal/grants"
	"github.com/meridian-crm/meridian-authz/internal/observability"
	"github.com/meridian-crm/meridian-authz/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AuthzHandler  *authz.Handler
	RolesHandler  *roles.Handler
	GrantsHandler *grants.Handler
	AuditHandler  *audit.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router for the service. The resolver
// endpoints are open (service-to-service); the management surface sits
// behind the admin token.
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
		r.Get("/metrics", params.Metrics.Handler().ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			adminToken := ""
			if params.Config != nil {
				adminToken = params.Config.AdminToken
			}
			r.Use(AdminAuth(adminToken, params.Logger))
			r.Route("/roles", params.RolesHandler.MountRoutes)
			params.GrantsHandler.MountRoutes(r)
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	})

	return r
}
