package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"complyhub/internal/modules/catalog"
	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/models"
	audit "complyhub/pkg/platform/audit"
	txcontext "complyhub/pkg/platform/tx"
	"complyhub/pkg/requestcontext"
)

// StateStore persists one row per module type.
type StateStore interface {
	LoadAll(ctx context.Context) ([]models.State, error)
	Save(ctx context.Context, state models.State) error
	SeedMissing(ctx context.Context, defaults []models.State) (int, error)
}

// AuditPublisher records committed transitions. It must fail closed: a
// transition whose audit record cannot be written is rolled back.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Invalidator tells other replicas that module state changed.
type Invalidator interface {
	Publish(ctx context.Context, t models.ModuleType) error
}

const defaultPersistTimeout = 5 * time.Second

var errNoStore = errors.New("module state store is required")

// Service is the enablement engine. Reads are served lock-free from an
// immutable snapshot; Enable and Disable are serialized by mu across the whole
// validate-then-commit sequence and publish a new snapshot only after the
// write committed.
type Service struct {
	catalog *catalog.Catalog
	states  StateStore
	listing []models.ModuleType

	tx             txcontext.Runner
	auditPublisher AuditPublisher
	invalidator    Invalidator
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	clock          func() time.Time
	persistTimeout time.Duration

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTransactor makes every write run in a transaction. State is re-read
// inside the transaction before validation, so replicas sharing the database
// validate against committed state.
func WithTransactor(tx txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithClock fixes the time source. Without it the request-scoped time from
// requestcontext is used.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithPersistTimeout bounds each write. Non-positive values keep the default.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New constructs a Service. Until Bootstrap runs, every module reports its
// catalog default.
func New(cat *catalog.Catalog, states StateStore, opts ...Option) (*Service, error) {
	if cat == nil {
		return nil, errors.New("module catalog is required")
	}
	if states == nil {
		return nil, errNoStore
	}
	s := &Service{
		catalog:        cat,
		states:         states,
		logger:         slog.Default(),
		tracer:         otel.Tracer("complyhub/internal/modules/service"),
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.listing = displayOrder(cat)

	snap, _ := s.buildSnapshot(nil, s.now(context.Background()))
	s.current.Store(snap)
	return s, nil
}

func displayOrder(cat *catalog.Catalog) []models.ModuleType {
	types := cat.Types()
	slices.SortStableFunc(types, func(a, b models.ModuleType) int {
		da, _ := cat.Get(a)
		db, _ := cat.Get(b)
		return cmp.Or(
			cmp.Compare(da.DisplayOrder, db.DisplayOrder),
			cmp.Compare(da.DisplayName, db.DisplayName),
			cmp.Compare(cat.Position(a), cat.Position(b)),
		)
	})
	return types
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return requestcontext.Now(ctx).UTC()
}

// Catalog exposes the immutable descriptor set.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// IsEnabled reports the committed state of t.
func (s *Service) IsEnabled(t models.ModuleType) (bool, error) {
	st, ok := s.current.Load().states[t]
	if !ok {
		return false, models.ErrUnknownModule(t)
	}
	return st.Enabled, nil
}

// Get returns the descriptor of t joined with its committed state.
func (s *Service) Get(t models.ModuleType) (models.ModuleView, error) {
	d, ok := s.catalog.Get(t)
	if !ok {
		return models.ModuleView{}, models.ErrUnknownModule(t)
	}
	return view(d, s.current.Load().states[t]), nil
}

// ListModules returns every module matching filter, ordered by display order,
// then display name, then declaration position.
func (s *Service) ListModules(filter models.Filter) []models.ModuleView {
	snap := s.current.Load()
	out := make([]models.ModuleView, 0, len(s.listing))
	for _, t := range s.listing {
		d, _ := s.catalog.Get(t)
		v := view(d, snap.states[t])
		if filter.Matches(v) {
			out = append(out, v)
		}
	}
	return out
}

// GetDependents returns the modules that directly require t, with their
// committed state, in declaration order.
func (s *Service) GetDependents(t models.ModuleType) ([]models.DependentView, error) {
	if !s.catalog.Has(t) {
		return nil, models.ErrUnknownModule(t)
	}
	snap := s.current.Load()
	deps := s.catalog.Graph().Dependents(t)
	out := make([]models.DependentView, 0, len(deps))
	for _, dep := range deps {
		d, _ := s.catalog.Get(dep)
		out = append(out, models.DependentView{
			Type:        dep,
			DisplayName: d.DisplayName,
			Enabled:     snap.states[dep].Enabled,
		})
	}
	return out, nil
}

// Plan lists the disabled members of t's required closure, dependencies
// first. Enabling them in order makes Enable(t) succeed. Plan never mutates.
func (s *Service) Plan(t models.ModuleType) ([]models.PlanStep, error) {
	if !s.catalog.Has(t) {
		return nil, models.ErrUnknownModule(t)
	}
	snap := s.current.Load()
	var steps []models.PlanStep
	for _, dep := range s.catalog.Graph().TransitiveRequiredClosure(t) {
		if snap.states[dep].Enabled {
			continue
		}
		d, _ := s.catalog.Get(dep)
		steps = append(steps, models.PlanStep{Type: dep, DisplayName: d.DisplayName})
	}
	return steps, nil
}

func view(d models.Descriptor, st models.State) models.ModuleView {
	return models.ModuleView{
		Descriptor:    d,
		Enabled:       st.Enabled,
		LastChangedAt: st.LastChangedAt,
		LastChangedBy: st.LastChangedBy,
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
