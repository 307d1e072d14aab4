package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"complyhub/internal/modules/handler"
	"complyhub/internal/modules/models"
	"complyhub/internal/modules/registry"
	"complyhub/pkg/platform/httputil"
	"complyhub/pkg/platform/middleware/auth"
	request "complyhub/pkg/platform/middleware/request"
	"complyhub/pkg/platform/middleware/requesttime"
)

// Feature routes owned by other teams. Each is reachable only while its module
// is enabled; the stub answer keeps the gate observable until the feature
// handlers land.
var featureRoutes = []struct {
	path   string
	module models.ModuleType
}{
	{"/users", models.UserManagement},
	{"/incidents", models.IncidentManagement},
	{"/audits", models.AuditManagement},
	{"/inspections", models.InspectionManagement},
	{"/trainings", models.TrainingManagement},
	{"/licenses", models.LicenseManagement},
	{"/ppe", models.PPEManagement},
	{"/waste", models.WasteManagement},
	{"/health-records", models.HealthManagement},
}

// Deps are the collaborators the router mounts.
type Deps struct {
	Modules  *handler.Handler
	Registry *registry.Registry
	Actors   auth.ActorValidator
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Health   func(ctx context.Context) error
}

// NewRouter wires the public, admin and feature endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.Logger))
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	d.Modules.RegisterPublic(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireActor(d.Actors, d.Logger))
		d.Modules.RegisterAdmin(r)
	})

	for _, f := range featureRoutes {
		r.With(d.Registry.RequireModule(f.module)).Get(f.path, featureStub(f.module))
	}
	return r
}

func featureStub(t models.ModuleType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"module": t,
			"items":  []any{},
		})
	}
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
