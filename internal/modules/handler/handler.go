package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"complyhub/internal/modules/models"
	dErrors "complyhub/pkg/domain-errors"
	"complyhub/pkg/platform/httputil"
	request "complyhub/pkg/platform/middleware/request"
	"complyhub/pkg/requestcontext"
)

// Service defines the module engine operations exposed over HTTP.
type Service interface {
	ListModules(filter models.Filter) []models.ModuleView
	Get(t models.ModuleType) (models.ModuleView, error)
	GetDependents(t models.ModuleType) ([]models.DependentView, error)
	Plan(t models.ModuleType) ([]models.PlanStep, error)
	Enable(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error)
	Disable(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error)
}

// Handler serves the module registry endpoints.
type Handler struct {
	modules Service
	logger  *slog.Logger
}

// New creates a new modules Handler.
func New(modules Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{modules: modules, logger: logger}
}

// RegisterPublic registers the read-only catalog routes. The frontend uses
// them to build navigation.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/modules", h.handleList)
	r.Get("/modules/{type}", h.handleGet)
}

// RegisterAdmin registers the routes that need an authenticated actor. The
// caller mounts them behind the admin auth middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/modules/{type}/dependents", h.handleDependents)
	r.Get("/modules/{type}/plan", h.handlePlan)
	r.Post("/modules/{type}/enable", h.handleEnable)
	r.Post("/modules/{type}/disable", h.handleDisable)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	modules := h.modules.ListModules(filter)
	httputil.WriteJSON(w, http.StatusOK, ListModulesResponse{Modules: modules, Total: len(modules)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.modules.Get(moduleParam(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleDependents(w http.ResponseWriter, r *http.Request) {
	t := moduleParam(r)
	dependents, err := h.modules.GetDependents(t)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DependentsResponse{Module: t, Dependents: dependents})
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	t := moduleParam(r)
	steps, err := h.modules.Plan(t)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if steps == nil {
		steps = []models.PlanStep{}
	}
	httputil.WriteJSON(w, http.StatusOK, PlanResponse{Module: t, Steps: steps})
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.modules.Enable)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.modules.Disable)
}

type transitionFunc func(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	actor := requestcontext.Actor(ctx)
	if actor == "" {
		// RequireActor always sets the actor; reaching here means the route
		// was mounted outside the admin group.
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	t := moduleParam(r)
	res, err := apply(ctx, t, actor)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeUnavailable {
			h.logger.ErrorContext(ctx, "module transition failed",
				"request_id", requestID,
				"module", t.String(),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func moduleParam(r *http.Request) models.ModuleType {
	return models.ParseModuleType(chi.URLParam(r, "type"))
}

func parseFilter(r *http.Request) (models.Filter, error) {
	var filter models.Filter
	q := r.URL.Query()
	var err error
	if filter.Enabled, err = parseBoolParam(q.Get("enabled"), "enabled"); err != nil {
		return models.Filter{}, err
	}
	if filter.Pinned, err = parseBoolParam(q.Get("pinned"), "pinned"); err != nil {
		return models.Filter{}, err
	}
	return filter, nil
}

func parseBoolParam(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "query parameter "+name+" must be a boolean")
	}
	return &v, nil
}
