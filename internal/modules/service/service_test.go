package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks StateStore,AuditPublisher,Invalidator

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"complyhub/internal/modules/catalog"
	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/models"
	"complyhub/internal/modules/store"
	dErrors "complyhub/pkg/domain-errors"
	audit "complyhub/pkg/platform/audit"
	"complyhub/pkg/platform/audit/publishers/compliance"
	auditmemory "complyhub/pkg/platform/audit/store/memory"
	"complyhub/pkg/requestcontext"
)

// =============================================================================
// Engine Test Suite
// =============================================================================
// The engine is exercised against the in-memory state store and the in-memory
// audit store, so every assertion sees real committed state.

var fixedNow = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)

type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	states  *store.InMemory
	audits  *auditmemory.InMemoryStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.states = store.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *EngineSuite) newService(descriptors []models.Descriptor, opts ...Option) *Service {
	cat, err := catalog.Build(descriptors)
	s.Require().NoError(err)
	base := []Option{
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return fixedNow }),
		WithAuditPublisher(compliance.New(s.audits)),
	}
	svc, err := New(cat, s.states, append(base, opts...)...)
	s.Require().NoError(err)
	s.Require().NoError(svc.Bootstrap(s.ctx))
	s.audits.Clear()
	return svc
}

func mod(t models.ModuleType, enabledByDefault bool, requires ...models.ModuleType) models.Descriptor {
	return models.Descriptor{
		Type:                 t,
		DisplayName:          string(t),
		EnabledByDefault:     enabledByDefault,
		CanBeDisabled:        true,
		RequiredDependencies: requires,
	}
}

func pinned(t models.ModuleType) models.Descriptor {
	d := mod(t, true)
	d.CanBeDisabled = false
	return d
}

func (s *EngineSuite) enabled(svc *Service, t models.ModuleType) bool {
	on, err := svc.IsEnabled(t)
	s.Require().NoError(err)
	return on
}

// assertSafety checks that every enabled module has its whole required
// closure enabled in the given view.
func (s *EngineSuite) assertSafety(svc *Service, views []models.ModuleView) {
	on := make(map[models.ModuleType]bool, len(views))
	for _, v := range views {
		on[v.Type] = v.Enabled
	}
	for _, v := range views {
		if !v.Enabled {
			continue
		}
		for _, dep := range svc.Catalog().Graph().TransitiveRequiredClosure(v.Type) {
			s.Truef(on[dep], "%s is enabled but requires disabled %s", v.Type, dep)
		}
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *EngineSuite) TestNew() {
	cat := catalog.MustBuild(catalog.Default())

	s.Run("nil catalog returns error", func() {
		_, err := New(nil, s.states)
		s.ErrorContains(err, "module catalog is required")
	})

	s.Run("nil store returns error", func() {
		_, err := New(cat, nil)
		s.ErrorIs(err, errNoStore)
	})

	s.Run("options are applied", func() {
		svc, err := New(cat, s.states, WithLogger(s.logger), WithPersistTimeout(time.Second), WithPersistTimeout(0))
		s.Require().NoError(err)
		s.Equal(s.logger, svc.logger)
		s.Equal(time.Second, svc.persistTimeout)
	})

	s.Run("defaults are served before bootstrap", func() {
		svc, err := New(cat, store.NewInMemory())
		s.Require().NoError(err)
		for _, d := range cat.Descriptors() {
			s.Equal(d.EnabledByDefault, s.enabled(svc, d.Type), d.Type)
		}
	})
}

// =============================================================================
// Bootstrap & Reload
// =============================================================================

func (s *EngineSuite) TestBootstrapSeedsDefaults() {
	svc := s.newService(catalog.Default())

	for _, d := range catalog.Default() {
		s.Equal(d.EnabledByDefault, s.enabled(svc, d.Type), d.Type)
	}

	rows, err := s.states.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Len(rows, len(catalog.Default()))
	for _, row := range rows {
		s.Equal(models.ActorSeed, row.LastChangedBy)
		s.Equal(fixedNow, row.LastChangedAt)
	}
	s.Equal(float64(5), testutil.ToFloat64(s.metrics.ModulesEnabled))
}

func (s *EngineSuite) TestBootstrapKeepsPersistedOverrides() {
	s.Require().NoError(s.states.Save(s.ctx, models.State{
		Type: models.TrainingManagement, Enabled: false, LastChangedAt: fixedNow.Add(-time.Hour), LastChangedBy: "admin-1",
	}))

	svc := s.newService(catalog.Default())
	s.False(s.enabled(svc, models.TrainingManagement))

	view, err := svc.Get(models.TrainingManagement)
	s.Require().NoError(err)
	s.Equal("admin-1", view.LastChangedBy)
}

func (s *EngineSuite) TestBootstrapReconcilesDrift() {
	// audit disabled while inspection (requires audit) is enabled, and the
	// pinned core module stored as disabled
	s.Require().NoError(s.states.Save(s.ctx, models.State{Type: models.AuditManagement, Enabled: false, LastChangedBy: "dba"}))
	s.Require().NoError(s.states.Save(s.ctx, models.State{Type: models.InspectionManagement, Enabled: true, LastChangedBy: "dba"}))
	s.Require().NoError(s.states.Save(s.ctx, models.State{Type: models.UserManagement, Enabled: false, LastChangedBy: "dba"}))

	cat := catalog.MustBuild(catalog.Default())
	svc, err := New(cat, s.states, WithLogger(s.logger), WithClock(func() time.Time { return fixedNow }),
		WithAuditPublisher(compliance.New(s.audits)))
	s.Require().NoError(err)
	s.Require().NoError(svc.Bootstrap(s.ctx))

	s.True(s.enabled(svc, models.UserManagement))
	s.False(s.enabled(svc, models.InspectionManagement))
	s.assertSafety(svc, svc.ListModules(models.Filter{}))

	row, err := s.states.Find(s.ctx, models.InspectionManagement)
	s.Require().NoError(err)
	s.False(row.Enabled, "correction is persisted")
	s.Equal(models.ActorReconcile, row.LastChangedBy)

	events, err := s.audits.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(events, 2)
	for _, e := range events {
		s.Equal(string(audit.EventModuleReconciled), e.Action)
		s.Equal(models.ActorReconcile, e.ActorID)
	}
}

func (s *EngineSuite) TestBootstrapIgnoresOrphanedRows() {
	s.Require().NoError(s.states.Save(s.ctx, models.State{Type: "retired_module", Enabled: true, LastChangedBy: "old"}))

	svc := s.newService(catalog.Default())
	for _, v := range svc.ListModules(models.Filter{}) {
		s.NotEqual(models.ModuleType("retired_module"), v.Type)
	}
	_, err := svc.IsEnabled("retired_module")
	s.Equal(models.KindUnknownModule, models.KindOf(err))

	_, err = s.states.Find(s.ctx, "retired_module")
	s.NoError(err, "orphaned rows are never purged")
}

func (s *EngineSuite) TestReload() {
	svc := s.newService(catalog.Default())

	s.Run("picks up rows written by another process", func() {
		s.Require().NoError(s.states.Save(s.ctx, models.State{
			Type: models.PPEManagement, Enabled: true, LastChangedAt: fixedNow, LastChangedBy: "replica-2",
		}))
		s.False(s.enabled(svc, models.PPEManagement))

		s.Require().NoError(svc.Reload(s.ctx))
		s.True(s.enabled(svc, models.PPEManagement))
	})

	s.Run("corrects invalid rows in the view only", func() {
		s.Require().NoError(s.states.Save(s.ctx, models.State{
			Type: models.LicenseManagement, Enabled: true, LastChangedAt: fixedNow, LastChangedBy: "replica-2",
		}))
		s.Require().NoError(s.states.Save(s.ctx, models.State{
			Type: models.TrainingManagement, Enabled: false, LastChangedAt: fixedNow, LastChangedBy: "replica-2",
		}))

		s.Require().NoError(svc.Reload(s.ctx))
		s.False(s.enabled(svc, models.LicenseManagement))
		s.assertSafety(svc, svc.ListModules(models.Filter{}))

		row, err := s.states.Find(s.ctx, models.LicenseManagement)
		s.Require().NoError(err)
		s.True(row.Enabled, "reload never writes")
	})
}

// =============================================================================
// Scenarios
// =============================================================================

func (s *EngineSuite) TestScenarioDependentBlocksDisable() {
	svc := s.newService([]models.Descriptor{mod("a", true), mod("b", true, "a")})

	_, err := svc.Disable(s.ctx, "a", "admin-1")
	s.Require().Error(err)
	s.Equal(models.KindDependentsStillEnabled, models.KindOf(err))
	s.Equal([]models.ModuleType{"b"}, models.BlockingOf(err))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.True(s.enabled(svc, "a"))

	res, err := svc.Disable(s.ctx, "b", "admin-1")
	s.Require().NoError(err)
	s.True(res.Changed)

	_, err = svc.Disable(s.ctx, "a", "admin-1")
	s.Require().NoError(err)
	s.False(s.enabled(svc, "a"))
}

func (s *EngineSuite) TestScenarioPinnedModuleIsLocked() {
	svc := s.newService([]models.Descriptor{pinned("core"), mod("reports", false, "core")})

	for _, reportsOn := range []bool{false, true} {
		if reportsOn {
			_, err := svc.Enable(s.ctx, "reports", "admin-1")
			s.Require().NoError(err)
		}
		_, err := svc.Disable(s.ctx, "core", "admin-1")
		s.Equal(models.KindModuleLocked, models.KindOf(err), "reports enabled=%v", reportsOn)
		s.True(s.enabled(svc, "core"))
	}
}

func (s *EngineSuite) TestScenarioMissingDependency() {
	svc := s.newService([]models.Descriptor{mod("c", false), mod("d", false, "c")})

	_, err := svc.Enable(s.ctx, "d", "admin-1")
	s.Require().Error(err)
	s.Equal(models.KindMissingDependency, models.KindOf(err))
	s.Equal([]models.ModuleType{"c"}, models.BlockingOf(err))
	s.False(s.enabled(svc, "d"))

	_, err = svc.Enable(s.ctx, "c", "admin-1")
	s.Require().NoError(err)
	_, err = svc.Enable(s.ctx, "d", "admin-1")
	s.Require().NoError(err)
	s.True(s.enabled(svc, "d"))
}

func (s *EngineSuite) TestMissingDependencyListsWholeClosure() {
	svc := s.newService([]models.Descriptor{
		mod("base", false),
		mod("mid", false, "base"),
		mod("top", false, "mid"),
	})

	_, err := svc.Enable(s.ctx, "top", "admin-1")
	s.Equal([]models.ModuleType{"base", "mid"}, models.BlockingOf(err))

	plan, err := svc.Plan("top")
	s.Require().NoError(err)
	s.Equal([]models.PlanStep{{Type: "base", DisplayName: "base"}, {Type: "mid", DisplayName: "mid"}}, plan)

	for _, step := range plan {
		_, err := svc.Enable(s.ctx, step.Type, "admin-1")
		s.Require().NoError(err)
	}
	_, err = svc.Enable(s.ctx, "top", "admin-1")
	s.NoError(err)

	plan, err = svc.Plan("top")
	s.Require().NoError(err)
	s.Empty(plan)
}

func (s *EngineSuite) TestOptionalDependentsNeverBlock() {
	svc := s.newService(catalog.Default())

	// audit_management lists incident_management as optional only, and
	// health_management (which requires it) starts disabled
	_, err := svc.Disable(s.ctx, models.IncidentManagement, "admin-1")
	s.NoError(err)
	s.True(s.enabled(svc, models.AuditManagement))
}

// =============================================================================
// Transition details
// =============================================================================

func (s *EngineSuite) TestIdempotence() {
	svc := s.newService(catalog.Default())

	s.Run("enable twice", func() {
		first, err := svc.Enable(s.ctx, models.PPEManagement, "admin-1")
		s.Require().NoError(err)
		s.True(first.Changed)

		second, err := svc.Enable(s.ctx, models.PPEManagement, "admin-2")
		s.Require().NoError(err)
		s.False(second.Changed)
		s.Equal("admin-1", second.ChangedBy, "no-op keeps the previous audit fields")
	})

	s.Run("disable twice", func() {
		_, err := svc.Disable(s.ctx, models.PPEManagement, "admin-1")
		s.Require().NoError(err)
		res, err := svc.Disable(s.ctx, models.PPEManagement, "admin-1")
		s.Require().NoError(err)
		s.False(res.Changed)
	})

	events, err := s.audits.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(events, 2, "no-ops are not audited")
}

func (s *EngineSuite) TestTransitionStampsAuditFields() {
	svc := s.newService(catalog.Default())
	ctx := requestcontext.WithRequestID(s.ctx, "req-42")

	res, err := svc.Enable(ctx, models.PPEManagement, "  ops@acme.example ")
	s.Require().NoError(err)
	s.Equal(models.TransitionResult{
		Module:    models.PPEManagement,
		Enabled:   true,
		Changed:   true,
		ChangedAt: fixedNow,
		ChangedBy: "ops@acme.example",
	}, res)

	row, err := s.states.Find(s.ctx, models.PPEManagement)
	s.Require().NoError(err)
	s.Equal("ops@acme.example", row.LastChangedBy)

	events, err := s.audits.ListBySubject(s.ctx, string(models.PPEManagement))
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventModuleEnabled), events[0].Action)
	s.Equal("enabled", events[0].Decision)
	s.Equal("req-42", events[0].RequestID)
	s.Equal(audit.CategoryCompliance, events[0].Category)

	s.Equal(float64(1), testutil.ToFloat64(
		s.metrics.Transitions.WithLabelValues(string(models.PPEManagement), actionEnable, metrics.OutcomeChanged)))
}

func (s *EngineSuite) TestRequestTimeIsUsedWithoutClock() {
	cat := catalog.MustBuild(catalog.Default())
	svc, err := New(cat, s.states, WithLogger(s.logger))
	s.Require().NoError(err)
	s.Require().NoError(svc.Bootstrap(s.ctx))

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.Enable(requestcontext.WithTime(s.ctx, at), models.WasteManagement, "admin-1")
	s.Require().NoError(err)
	s.Equal(at, res.ChangedAt)
}

func (s *EngineSuite) TestInputValidation() {
	svc := s.newService(catalog.Default())

	s.Run("actor is required", func() {
		_, err := svc.Enable(s.ctx, models.PPEManagement, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.False(s.enabled(svc, models.PPEManagement))
	})

	s.Run("unknown module", func() {
		_, err := svc.Enable(s.ctx, "payroll", "admin-1")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
		_, err = svc.Disable(s.ctx, "payroll", "admin-1")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
		_, err = svc.IsEnabled("payroll")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
		_, err = svc.Get("payroll")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = svc.GetDependents("payroll")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
		_, err = svc.Plan("payroll")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
	})

	s.Run("unknown module is reported before a missing actor", func() {
		_, err := svc.Enable(s.ctx, "nope", "")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
		_, err = svc.Disable(s.ctx, "nope", "  ")
		s.Equal(models.KindUnknownModule, models.KindOf(err))
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *EngineSuite) TestListModulesOrdering() {
	a := mod("zeta", true)
	a.DisplayOrder = 1
	a.DisplayName = "Same"
	b := mod("alpha", true)
	b.DisplayOrder = 1
	b.DisplayName = "Same"
	c := mod("first", false)
	c.DisplayOrder = 0
	c.DisplayName = "Zulu"
	d := mod("named", true)
	d.DisplayOrder = 1
	d.DisplayName = "Alpha"

	svc := s.newService([]models.Descriptor{a, b, c, d})

	var got []models.ModuleType
	for _, v := range svc.ListModules(models.Filter{}) {
		got = append(got, v.Type)
	}
	s.Equal([]models.ModuleType{"first", "named", "zeta", "alpha"}, got)

	var enabled []models.ModuleType
	for _, v := range svc.ListModules(models.OnlyEnabled()) {
		enabled = append(enabled, v.Type)
	}
	s.Equal([]models.ModuleType{"named", "zeta", "alpha"}, enabled)
	s.Len(svc.ListModules(models.OnlyDisabled()), 1)
}

func (s *EngineSuite) TestGetDependents() {
	svc := s.newService(catalog.Default())

	deps, err := svc.GetDependents(models.InspectionManagement)
	s.Require().NoError(err)
	s.Equal([]models.DependentView{
		{Type: models.WasteManagement, DisplayName: "Waste Management", Enabled: false},
	}, deps)

	deps, err = svc.GetDependents(models.HealthManagement)
	s.Require().NoError(err)
	s.Empty(deps)
}

// =============================================================================
// Properties
// =============================================================================

// TestRandomTransitionsKeepInvariants drives the default catalog through a
// long random sequence and checks, at every step, the safety invariant and the
// exact conditions under which Enable and Disable are rejected.
func (s *EngineSuite) TestRandomTransitionsKeepInvariants() {
	svc := s.newService(catalog.Default())
	cat := svc.Catalog()
	types := cat.Types()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		t := types[rng.Intn(len(types))]
		before := svc.ListModules(models.Filter{})
		on := make(map[models.ModuleType]bool, len(before))
		for _, v := range before {
			on[v.Type] = v.Enabled
		}
		d, _ := cat.Get(t)

		if rng.Intn(2) == 0 {
			wantMissing := false
			if !on[t] {
				for _, dep := range cat.Graph().TransitiveRequiredClosure(t) {
					wantMissing = wantMissing || !on[dep]
				}
			}
			_, err := svc.Enable(s.ctx, t, "fuzzer")
			s.Equal(wantMissing, models.KindOf(err) == models.KindMissingDependency, "enable %s", t)
			if !wantMissing {
				s.NoError(err)
			}
		} else {
			wantBlocked := false
			for _, dep := range cat.Graph().Dependents(t) {
				wantBlocked = wantBlocked || on[dep]
			}
			_, err := svc.Disable(s.ctx, t, "fuzzer")
			switch {
			case d.Pinned():
				s.Equal(models.KindModuleLocked, models.KindOf(err), "disable %s", t)
			case wantBlocked:
				s.Equal(models.KindDependentsStillEnabled, models.KindOf(err), "disable %s", t)
			default:
				s.NoError(err, "disable %s", t)
			}
		}
		s.assertSafety(svc, svc.ListModules(models.Filter{}))
	}
}

func (s *EngineSuite) TestConcurrentTransitionsKeepInvariants() {
	svc := s.newService(catalog.Default())
	types := svc.Catalog().Types()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
					s.assertSafety(svc, svc.ListModules(models.Filter{}))
				}
			}
		}()
	}

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				t := types[rng.Intn(len(types))]
				if rng.Intn(2) == 0 {
					_, _ = svc.Enable(s.ctx, t, "writer")
				} else {
					_, _ = svc.Disable(s.ctx, t, "writer")
				}
			}
		}(int64(w))
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	// the committed store agrees with the served snapshot
	rows, err := s.states.LoadAll(s.ctx)
	s.Require().NoError(err)
	for _, row := range rows {
		s.Equal(row.Enabled, s.enabled(svc, row.Type), row.Type)
	}
}
