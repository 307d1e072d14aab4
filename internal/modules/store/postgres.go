package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"complyhub/internal/modules/models"
	"complyhub/pkg/platform/sentinel"
	txcontext "complyhub/pkg/platform/tx"
)

// Postgres persists module state in the module_states table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed state store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// LoadAll returns every row, including rows for types no longer in the catalog.
func (s *Postgres) LoadAll(ctx context.Context) ([]models.State, error) {
	query := `
		SELECT module_type, enabled, last_changed_at, last_changed_by
		FROM module_states
		ORDER BY module_type
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query module states: %w", err)
	}
	defer rows.Close()

	var states []models.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module states: %w", err)
	}
	return states, nil
}

// Find returns the row for t, or sentinel.ErrNotFound.
func (s *Postgres) Find(ctx context.Context, t models.ModuleType) (models.State, error) {
	query := `
		SELECT module_type, enabled, last_changed_at, last_changed_by
		FROM module_states
		WHERE module_type = $1
	`
	st, err := scanState(s.execer(ctx).QueryRowContext(ctx, query, string(t)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.State{}, sentinel.ErrNotFound
	}
	return st, err
}

// Save upserts one row.
func (s *Postgres) Save(ctx context.Context, st models.State) error {
	query := `
		INSERT INTO module_states (module_type, enabled, last_changed_at, last_changed_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (module_type) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			last_changed_at = EXCLUDED.last_changed_at,
			last_changed_by = EXCLUDED.last_changed_by
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		string(st.Type),
		st.Enabled,
		st.LastChangedAt.UTC(),
		st.LastChangedBy,
	)
	if err != nil {
		return fmt.Errorf("upsert module state %s: %w", st.Type, err)
	}
	return nil
}

// SeedMissing inserts default rows in one round trip. Rows that already exist
// keep their values. All seeded rows share the timestamp and actor of the
// first element.
func (s *Postgres) SeedMissing(ctx context.Context, defaults []models.State) (int, error) {
	if len(defaults) == 0 {
		return 0, nil
	}
	types := make([]string, len(defaults))
	enabled := make([]bool, len(defaults))
	for i, st := range defaults {
		types[i] = string(st.Type)
		enabled[i] = st.Enabled
	}

	query := `
		INSERT INTO module_states (module_type, enabled, last_changed_at, last_changed_by)
		SELECT t, e, $3, $4
		FROM unnest($1::text[], $2::boolean[]) AS seed(t, e)
		ON CONFLICT (module_type) DO NOTHING
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		pq.Array(types),
		pq.Array(enabled),
		defaults[0].LastChangedAt.UTC(),
		defaults[0].LastChangedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("seed module states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("seed module states: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (models.State, error) {
	var (
		st        models.State
		rawType   string
		changedAt time.Time
	)
	if err := row.Scan(&rawType, &st.Enabled, &changedAt, &st.LastChangedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.State{}, err
		}
		return models.State{}, fmt.Errorf("scan module state: %w", err)
	}
	st.Type = models.ModuleType(rawType)
	st.LastChangedAt = changedAt.UTC()
	return st, nil
}
