package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"complyhub/internal/modules/models"
	audit "complyhub/pkg/platform/audit"
	dErrors "complyhub/pkg/domain-errors"
	"complyhub/pkg/requestcontext"
)

// Bootstrap seeds a row for every catalog module that has none, loads all
// rows, and persists the corrections needed for the dependency invariant to
// hold. Corrections are written as the reconcile actor and audited. Call it
// once at startup before serving traffic.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now(ctx)
	var next *snapshot
	err := s.runUnit(ctx, func(ctx context.Context) error {
		defaults := make([]models.State, 0, s.catalog.Len())
		for _, d := range s.catalog.Descriptors() {
			defaults = append(defaults, models.DefaultState(d, now))
		}
		inserted, err := s.states.SeedMissing(ctx, defaults)
		if err != nil {
			return fmt.Errorf("seed module states: %w", err)
		}
		if inserted > 0 {
			s.logAudit(ctx, string(audit.EventModulesSeeded),
				"count", inserted,
				"actor", models.ActorSeed)
		}

		rows, err := s.states.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load module states: %w", err)
		}
		snap, rec := s.buildSnapshot(rows, now)
		s.logOrphans(ctx, rec.orphans)
		for _, fix := range rec.fixes {
			if err := s.states.Save(ctx, fix.to); err != nil {
				return fmt.Errorf("reconcile %s: %w", fix.to.Type, err)
			}
			if err := s.emit(ctx, fix.to, audit.EventModuleReconciled, fix.reason); err != nil {
				return fmt.Errorf("audit reconcile %s: %w", fix.to.Type, err)
			}
			s.logger.WarnContext(ctx, "module state reconciled",
				"module", fix.to.Type,
				"enabled", fix.to.Enabled,
				"reason", fix.reason)
		}
		next = snap
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "bootstrap module state")
	}
	s.publish(next)
	return nil
}

// Reload rebuilds the snapshot from the store. It is the explicit
// invalidation hook for state written by another process. Invariant
// violations found in the store are corrected in the served view only and
// logged; they are not written back.
func (s *Service) Reload(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "modules.Reload")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	rows, err := s.states.LoadAll(loadCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		if s.metrics != nil {
			s.metrics.IncReload("failed")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "reload module state")
	}

	snap, rec := s.buildSnapshot(rows, s.now(ctx))
	s.logOrphans(ctx, rec.orphans)
	for _, fix := range rec.fixes {
		s.logger.WarnContext(ctx, "stored module state violates dependency rules, serving corrected value",
			"module", fix.to.Type,
			"stored_enabled", fix.from.Enabled,
			"served_enabled", fix.to.Enabled,
			"reason", fix.reason)
	}
	s.publish(snap)
	if s.metrics != nil {
		s.metrics.IncReload("ok")
	}
	return nil
}

func (s *Service) publish(snap *snapshot) {
	s.current.Store(snap)
	if s.metrics != nil {
		s.metrics.SetEnabled(snap.enabled)
	}
}

func (s *Service) logOrphans(ctx context.Context, orphans []models.ModuleType) {
	for _, t := range orphans {
		s.logger.WarnContext(ctx, "ignoring stored state for module missing from catalog", "module", t)
	}
}

// runUnit runs fn under the persist timeout, inside a transaction when one
// is configured.
func (s *Service) runUnit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) emit(ctx context.Context, st models.State, event audit.AuditEvent, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	decision := "disabled"
	if st.Enabled {
		decision = "enabled"
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: st.LastChangedAt,
		Subject:   string(st.Type),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   st.LastChangedBy,
	})
}
