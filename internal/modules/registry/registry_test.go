package registry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"complyhub/internal/modules/catalog"
	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/models"
	"complyhub/internal/modules/service"
	"complyhub/internal/modules/store"
	"complyhub/pkg/platform/httputil"
)

type RegistrySuite struct {
	suite.Suite
	engine   *service.Service
	registry *Registry
	metrics  *metrics.Metrics
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := service.New(catalog.MustBuild(catalog.Default()), store.NewInMemory(), service.WithLogger(logger))
	s.Require().NoError(err)
	s.Require().NoError(engine.Bootstrap(context.Background()))
	s.engine = engine
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.registry = New(engine, WithLogger(logger), WithMetrics(s.metrics))
}

func (s *RegistrySuite) serve(t models.ModuleType) *httptest.ResponseRecorder {
	h := s.registry.RequireModule(t)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feature", nil))
	return rec
}

func (s *RegistrySuite) TestRequireModule() {
	s.Run("enabled module passes through", func() {
		s.Equal(http.StatusNoContent, s.serve(models.IncidentManagement).Code)
	})

	s.Run("disabled module answers 404", func() {
		rec := s.serve(models.WasteManagement)
		s.Equal(http.StatusNotFound, rec.Code)

		var body httputil.ErrorResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		s.Equal("module_disabled", body.Error)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.GateRejections.WithLabelValues(string(models.WasteManagement))))
	})

	s.Run("gate follows committed state", func() {
		_, err := s.engine.Enable(context.Background(), models.WasteManagement, "admin-1")
		s.Require().NoError(err)
		s.Equal(http.StatusNoContent, s.serve(models.WasteManagement).Code)
	})

	s.Run("unknown module is a wiring error", func() {
		s.Equal(http.StatusInternalServerError, s.serve("payroll").Code)
	})
}

func (s *RegistrySuite) TestReads() {
	on, err := s.registry.IsEnabled(models.UserManagement)
	s.Require().NoError(err)
	s.True(on)

	_, err = s.registry.IsEnabled("payroll")
	s.Equal(models.KindUnknownModule, models.KindOf(err))

	s.Len(s.registry.ListModules(models.Filter{}), len(catalog.Default()))
	for _, v := range s.registry.EnabledModules() {
		s.True(v.Enabled)
	}
}
