// Package registry is the read-only face of the module engine handed to the
// rest of the platform: navigation builders, feature gates and route guards
// ask it whether a module is on, and never see a mutating method.
package registry

import (
	"log/slog"
	"net/http"

	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/models"
	"complyhub/pkg/platform/httputil"
	request "complyhub/pkg/platform/middleware/request"
)

// Reader is the read side of the engine.
type Reader interface {
	IsEnabled(t models.ModuleType) (bool, error)
	ListModules(filter models.Filter) []models.ModuleView
}

// Registry answers module state queries from the committed snapshot.
type Registry struct {
	reader  Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func New(reader Reader, opts ...Option) *Registry {
	r := &Registry{reader: reader, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsEnabled reports whether t is on. Unknown types are an error, never a
// default.
func (r *Registry) IsEnabled(t models.ModuleType) (bool, error) {
	return r.reader.IsEnabled(t)
}

// ListModules returns modules in display order.
func (r *Registry) ListModules(filter models.Filter) []models.ModuleView {
	return r.reader.ListModules(filter)
}

// EnabledModules is ListModules restricted to enabled modules, the shape
// navigation menus are built from.
func (r *Registry) EnabledModules() []models.ModuleView {
	return r.reader.ListModules(models.OnlyEnabled())
}

// RequireModule guards feature routes. A disabled module answers 404 so the
// feature looks absent; a type missing from the catalog is a wiring bug and
// answers 500.
func (r *Registry) RequireModule(t models.ModuleType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			enabled, err := r.reader.IsEnabled(t)
			if err != nil {
				r.logger.ErrorContext(req.Context(), "route gated on module missing from catalog",
					"module", t,
					"path", req.URL.Path,
					"request_id", request.GetRequestID(req.Context()),
				)
				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
					Error: "internal_error",
				})
				return
			}
			if !enabled {
				if r.metrics != nil {
					r.metrics.IncGateRejection(string(t))
				}
				httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{
					Error:       "module_disabled",
					Description: "module " + string(t) + " is not enabled",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
