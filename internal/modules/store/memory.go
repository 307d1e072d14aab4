package store

import (
	"context"
	"slices"
	"sync"

	"complyhub/internal/modules/models"
	"complyhub/pkg/platform/sentinel"
)

// InMemory keeps module state in a map guarded by a RWMutex.
type InMemory struct {
	mu     sync.RWMutex
	states map[models.ModuleType]models.State
	order  []models.ModuleType
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{states: make(map[models.ModuleType]models.State)}
}

// LoadAll returns every stored row in insertion order.
func (s *InMemory) LoadAll(ctx context.Context) ([]models.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.State, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, s.states[t])
	}
	return out, nil
}

// Find returns the row for t, or sentinel.ErrNotFound.
func (s *InMemory) Find(ctx context.Context, t models.ModuleType) (models.State, error) {
	if err := ctx.Err(); err != nil {
		return models.State{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[t]
	if !ok {
		return models.State{}, sentinel.ErrNotFound
	}
	return st, nil
}

// Save upserts one row.
func (s *InMemory) Save(ctx context.Context, st models.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[st.Type]; !ok {
		s.order = append(s.order, st.Type)
	}
	s.states[st.Type] = st
	return nil
}

// SeedMissing inserts the given rows for types that have none yet and reports
// how many were inserted. Existing rows are left untouched.
func (s *InMemory) SeedMissing(ctx context.Context, defaults []models.State) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, st := range defaults {
		if _, ok := s.states[st.Type]; ok {
			continue
		}
		s.states[st.Type] = st
		s.order = append(s.order, st.Type)
		inserted++
	}
	return inserted, nil
}

// Delete removes a row. Only used by tests and tooling that simulate manual
// intervention; the engine never deletes state.
func (s *InMemory) Delete(t models.ModuleType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, t)
	s.order = slices.DeleteFunc(s.order, func(x models.ModuleType) bool { return x == t })
}
