package service

import (
	"maps"
	"time"

	"complyhub/internal/modules/models"
)

// snapshot is an immutable view of committed state, keyed by catalog type.
// It always holds exactly one entry per catalog module.
type snapshot struct {
	states  map[models.ModuleType]models.State
	enabled int
}

func (s *snapshot) with(st models.State) *snapshot {
	next := &snapshot{states: maps.Clone(s.states), enabled: s.enabled}
	if prev := next.states[st.Type]; prev.Enabled != st.Enabled {
		if st.Enabled {
			next.enabled++
		} else {
			next.enabled--
		}
	}
	next.states[st.Type] = st
	return next
}

// correction is a state change needed to bring persisted rows back in line
// with the catalog.
type correction struct {
	from   models.State
	to     models.State
	reason string
}

type reconciliation struct {
	fixes   []correction
	orphans []models.ModuleType
}

// buildSnapshot turns persisted rows into a snapshot that satisfies the
// dependency invariant. Rows for types outside the catalog are reported as
// orphans and skipped; catalog types without a row take their default.
//
// Pinned modules and everything they require are forced on first. Then, in
// topological order, any enabled module with a disabled requirement is
// switched off, so a single pass settles the whole graph.
func (s *Service) buildSnapshot(rows []models.State, now time.Time) (*snapshot, reconciliation) {
	var rec reconciliation
	states := make(map[models.ModuleType]models.State, s.catalog.Len())
	for _, row := range rows {
		if !s.catalog.Has(row.Type) {
			rec.orphans = append(rec.orphans, row.Type)
			continue
		}
		states[row.Type] = row
	}
	for _, d := range s.catalog.Descriptors() {
		if _, ok := states[d.Type]; !ok {
			states[d.Type] = models.DefaultState(d, now)
		}
	}

	set := func(t models.ModuleType, enabled bool, reason string) {
		from := states[t]
		to := models.State{Type: t, Enabled: enabled, LastChangedAt: now, LastChangedBy: models.ActorReconcile}
		states[t] = to
		rec.fixes = append(rec.fixes, correction{from: from, to: to, reason: reason})
	}

	g := s.catalog.Graph()
	for _, d := range s.catalog.Descriptors() {
		if !d.Pinned() {
			continue
		}
		if !states[d.Type].Enabled {
			set(d.Type, true, "module cannot be disabled")
		}
		for _, dep := range g.TransitiveRequiredClosure(d.Type) {
			if !states[dep].Enabled {
				set(dep, true, "required by a module that cannot be disabled")
			}
		}
	}

	order, _ := g.TopologicalOrder()
	for _, t := range order {
		if !states[t].Enabled {
			continue
		}
		for _, dep := range g.Dependencies(t) {
			if !states[dep].Enabled {
				set(t, false, "required dependency "+string(dep)+" is disabled")
				break
			}
		}
	}

	snap := &snapshot{states: states}
	for _, st := range states {
		if st.Enabled {
			snap.enabled++
		}
	}
	return snap, rec
}
