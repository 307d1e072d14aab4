package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"complyhub/internal/modules/metrics"
	"complyhub/internal/modules/models"
	audit "complyhub/pkg/platform/audit"
	dErrors "complyhub/pkg/domain-errors"
)

const (
	actionEnable  = "enable"
	actionDisable = "disable"
)

// compensationTimeout bounds the rollback write issued when the audit record
// of an in-memory transition cannot be written.
const compensationTimeout = 2 * time.Second

// Enable turns t on. Enabling an enabled module is a successful no-op. Every
// module in t's transitive required closure must already be enabled;
// otherwise a KindMissingDependency error lists the disabled ones and nothing
// changes.
func (s *Service) Enable(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error) {
	return s.transition(ctx, t, actor, true)
}

// Disable turns t off. Disabling a disabled module is a successful no-op.
// Pinned modules fail with KindModuleLocked. If any enabled module directly
// requires t, a KindDependentsStillEnabled error lists them. Optional
// dependents never block.
func (s *Service) Disable(ctx context.Context, t models.ModuleType, actor string) (models.TransitionResult, error) {
	return s.transition(ctx, t, actor, false)
}

func (s *Service) transition(ctx context.Context, t models.ModuleType, actor string, enable bool) (models.TransitionResult, error) {
	action := actionDisable
	if enable {
		action = actionEnable
	}
	ctx, span := s.tracer.Start(ctx, "modules."+action, trace.WithAttributes(
		attribute.String("module", string(t)),
		attribute.String("actor", actor),
	))
	defer span.End()
	start := time.Now()

	result, err := s.commit(ctx, t, strings.TrimSpace(actor), enable)

	outcome := metrics.OutcomeNoop
	switch {
	case err != nil && models.KindOf(err) == models.KindPersistence:
		outcome = metrics.OutcomeFailed
	case err != nil:
		outcome = metrics.OutcomeRejected
	case result.Changed:
		outcome = metrics.OutcomeChanged
	}
	if s.metrics != nil && s.catalog.Has(t) {
		s.metrics.ObserveTransition(string(t), action, outcome, time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(models.KindOf(err)))
		return models.TransitionResult{}, err
	}

	if result.Changed {
		event := audit.EventModuleDisabled
		if enable {
			event = audit.EventModuleEnabled
		}
		s.logAudit(ctx, string(event),
			"module", t,
			"actor", result.ChangedBy)
		s.notify(ctx, t)
	}
	return result, nil
}

// commit holds mu across validation and the write, so no other transition can
// interleave between the check and the commit.
func (s *Service) commit(ctx context.Context, t models.ModuleType, actor string, enable bool) (models.TransitionResult, error) {
	d, ok := s.catalog.Get(t)
	if !ok {
		return models.TransitionResult{}, models.ErrUnknownModule(t)
	}
	if actor == "" {
		return models.TransitionResult{}, dErrors.New(dErrors.CodeValidation, "actor is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now(ctx)
	var (
		result models.TransitionResult
		next   *snapshot
	)
	err := s.runUnit(ctx, func(ctx context.Context) error {
		snap := s.current.Load()
		if s.tx != nil {
			rows, err := s.states.LoadAll(ctx)
			if err != nil {
				return err
			}
			snap, _ = s.buildSnapshot(rows, now)
		}

		cur := snap.states[t]
		if cur.Enabled == enable {
			result = models.TransitionResult{
				Module:    t,
				Enabled:   cur.Enabled,
				ChangedAt: cur.LastChangedAt,
				ChangedBy: cur.LastChangedBy,
			}
			// a re-read may have observed another replica's commit
			if s.tx != nil {
				next = snap
			}
			return nil
		}

		if err := s.validate(snap, d, enable); err != nil {
			return err
		}

		st := models.State{Type: t, Enabled: enable, LastChangedAt: now, LastChangedBy: actor}
		if err := s.states.Save(ctx, st); err != nil {
			return err
		}
		event := audit.EventModuleDisabled
		if enable {
			event = audit.EventModuleEnabled
		}
		if err := s.emit(ctx, st, event, ""); err != nil {
			if s.tx == nil {
				s.compensate(ctx, cur)
			}
			return err
		}

		next = snap.with(st)
		result = models.TransitionResult{
			Module:    t,
			Enabled:   enable,
			Changed:   true,
			ChangedAt: now,
			ChangedBy: actor,
		}
		return nil
	})
	if err != nil {
		if models.KindOf(err) == "" {
			s.logger.ErrorContext(ctx, "module state write failed", "module", t, "error", err)
			return models.TransitionResult{}, models.ErrPersistence(t, err)
		}
		return models.TransitionResult{}, err
	}
	if next != nil {
		s.publish(next)
	}
	return result, nil
}

func (s *Service) validate(snap *snapshot, d models.Descriptor, enable bool) error {
	g := s.catalog.Graph()
	if enable {
		var unmet []models.ModuleType
		for _, dep := range g.TransitiveRequiredClosure(d.Type) {
			if !snap.states[dep].Enabled {
				unmet = append(unmet, dep)
			}
		}
		if len(unmet) > 0 {
			return models.ErrMissingDependency(d.Type, unmet)
		}
		return nil
	}

	if d.Pinned() {
		return models.ErrModuleLocked(d.Type)
	}
	var blocking []models.ModuleType
	for _, dep := range g.Dependents(d.Type) {
		if snap.states[dep].Enabled {
			blocking = append(blocking, dep)
		}
	}
	if len(blocking) > 0 {
		return models.ErrDependentsStillEnabled(d.Type, blocking)
	}
	return nil
}

// compensate restores the previous row after the audit write failed. It runs
// detached from ctx, which may already be past its deadline.
func (s *Service) compensate(ctx context.Context, prev models.State) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := s.states.Save(cctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore module state after audit failure; reload required",
			"module", prev.Type,
			"error", err)
	}
}

// notify tells other replicas to reload. Failures only delay their view.
func (s *Service) notify(ctx context.Context, t models.ModuleType) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Publish(ctx, t); err != nil {
		s.logger.WarnContext(ctx, "module invalidation publish failed", "module", t, "error", err)
	}
}
