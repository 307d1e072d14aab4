package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"complyhub/internal/modules/catalog"
	"complyhub/internal/modules/models"
	"complyhub/internal/modules/service"
	"complyhub/internal/modules/store"
	"complyhub/pkg/platform/httputil"
	"complyhub/pkg/requestcontext"
)

type ModulesHandlerSuite struct {
	suite.Suite
	ctx    context.Context
	svc    *service.Service
	router chi.Router
}

func TestModulesHandlerSuite(t *testing.T) {
	suite.Run(t, new(ModulesHandlerSuite))
}

func (s *ModulesHandlerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.New(catalog.MustBuild(catalog.Default()), store.NewInMemory(),
		service.WithLogger(logger),
		service.WithClock(func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }),
	)
	s.Require().NoError(err)
	s.Require().NoError(svc.Bootstrap(s.ctx))
	s.svc = svc

	h := New(svc, logger)
	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(withActor("ops@acme.example"))
		h.RegisterAdmin(r)
	})
	s.router = r
}

func withActor(actor string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actor)))
		})
	}
}

func (s *ModulesHandlerSuite) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// =============================================================================
// Public routes
// =============================================================================

func (s *ModulesHandlerSuite) TestListModules() {
	s.Run("all modules in display order", func() {
		w := s.do(http.MethodGet, "/modules")
		s.Equal(http.StatusOK, w.Code)
		resp := decode[ListModulesResponse](s.T(), w)
		s.Equal(9, resp.Total)
		s.Equal(models.UserManagement, resp.Modules[0].Type)
		s.Equal(models.HealthManagement, resp.Modules[8].Type)
	})

	s.Run("filtered by enabled flag", func() {
		w := s.do(http.MethodGet, "/modules?enabled=true")
		s.Equal(http.StatusOK, w.Code)
		resp := decode[ListModulesResponse](s.T(), w)
		s.Equal(5, resp.Total)
		for _, m := range resp.Modules {
			s.True(m.Enabled, m.Type)
		}
	})

	s.Run("filtered by pinned flag", func() {
		w := s.do(http.MethodGet, "/modules?pinned=true")
		resp := decode[ListModulesResponse](s.T(), w)
		s.Require().Equal(1, resp.Total)
		s.Equal(models.UserManagement, resp.Modules[0].Type)
	})

	s.Run("malformed filter is rejected", func() {
		w := s.do(http.MethodGet, "/modules?enabled=maybe")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *ModulesHandlerSuite) TestGetModule() {
	s.Run("path segment is normalised", func() {
		w := s.do(http.MethodGet, "/modules/PPE_Management")
		s.Equal(http.StatusOK, w.Code)
		v := decode[models.ModuleView](s.T(), w)
		s.Equal(models.PPEManagement, v.Type)
		s.False(v.Enabled)
		s.Equal(models.ActorSeed, v.LastChangedBy)
	})

	s.Run("unknown module is 404", func() {
		w := s.do(http.MethodGet, "/modules/payroll")
		s.Equal(http.StatusNotFound, w.Code)
		resp := decode[httputil.ErrorResponse](s.T(), w)
		s.Equal(string(models.KindUnknownModule), resp.Kind)
	})
}

// =============================================================================
// Admin routes
// =============================================================================

func (s *ModulesHandlerSuite) TestEnableAndDisable() {
	w := s.do(http.MethodPost, "/modules/health_management/enable")
	s.Require().Equal(http.StatusOK, w.Code)
	res := decode[models.TransitionResult](s.T(), w)
	s.True(res.Changed)
	s.True(res.Enabled)
	s.Equal("ops@acme.example", res.ChangedBy)

	w = s.do(http.MethodPost, "/modules/health_management/enable")
	s.Require().Equal(http.StatusOK, w.Code)
	s.False(decode[models.TransitionResult](s.T(), w).Changed)

	w = s.do(http.MethodPost, "/modules/health_management/disable")
	s.Require().Equal(http.StatusOK, w.Code)
	s.False(decode[models.TransitionResult](s.T(), w).Enabled)
}

func (s *ModulesHandlerSuite) TestRejectedTransitions() {
	s.Run("enabled dependents block disable", func() {
		w := s.do(http.MethodPost, "/modules/audit_management/disable")
		s.Equal(http.StatusConflict, w.Code)
		resp := decode[httputil.ErrorResponse](s.T(), w)
		s.Equal(string(models.KindDependentsStillEnabled), resp.Kind)
		s.Equal([]string{string(models.InspectionManagement)}, resp.Blocking)
	})

	s.Run("pinned module is locked", func() {
		w := s.do(http.MethodPost, "/modules/user_management/disable")
		s.Equal(http.StatusConflict, w.Code)
		s.Equal(string(models.KindModuleLocked), decode[httputil.ErrorResponse](s.T(), w).Kind)
	})

	s.Run("missing dependency blocks enable", func() {
		_, err := s.svc.Disable(s.ctx, models.InspectionManagement, "setup")
		s.Require().NoError(err)

		w := s.do(http.MethodPost, "/modules/waste_management/enable")
		s.Equal(http.StatusConflict, w.Code)
		resp := decode[httputil.ErrorResponse](s.T(), w)
		s.Equal(string(models.KindMissingDependency), resp.Kind)
		s.Equal([]string{string(models.InspectionManagement)}, resp.Blocking)
	})
}

func (s *ModulesHandlerSuite) TestDependentsAndPlan() {
	w := s.do(http.MethodGet, "/modules/user_management/dependents")
	s.Require().Equal(http.StatusOK, w.Code)
	deps := decode[DependentsResponse](s.T(), w)
	s.Len(deps.Dependents, 8)

	w = s.do(http.MethodGet, "/modules/waste_management/plan")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(decode[PlanResponse](s.T(), w).Steps)
	s.Contains(w.Body.String(), `"steps":[]`)

	_, err := s.svc.Disable(s.ctx, models.InspectionManagement, "setup")
	s.Require().NoError(err)
	w = s.do(http.MethodGet, "/modules/waste_management/plan")
	plan := decode[PlanResponse](s.T(), w)
	s.Equal([]models.PlanStep{{Type: models.InspectionManagement, DisplayName: "Inspection Management"}}, plan.Steps)
}

func TestTransitionWithoutActorIsInternalError(t *testing.T) {
	svc, err := service.New(catalog.MustBuild(catalog.Default()), store.NewInMemory())
	require.NoError(t, err)
	h := New(svc, nil)
	r := chi.NewRouter()
	h.RegisterAdmin(r)

	req := httptest.NewRequest(http.MethodPost, "/modules/ppe_management/enable", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	enabled, err := svc.IsEnabled(models.PPEManagement)
	require.NoError(t, err)
	assert.False(t, enabled)
}
