package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "complyhub/pkg/domain-errors"
	txcontext "complyhub/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Transactor runs units of work in a database transaction. When a lock key is
// configured every transaction first takes a transaction-scoped advisory lock,
// which serializes writers across replicas.
type Transactor struct {
	db      *sql.DB
	timeout time.Duration
	lockKey int64
}

// TransactorOption configures a Transactor.
type TransactorOption func(*Transactor)

// WithTimeout bounds each transaction when the caller set no deadline.
func WithTimeout(d time.Duration) TransactorOption {
	return func(t *Transactor) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithAdvisoryLock makes every transaction acquire pg_advisory_xact_lock(key).
func WithAdvisoryLock(key int64) TransactorOption {
	return func(t *Transactor) {
		t.lockKey = key
	}
}

// NewTransactor constructs a Transactor over db.
func NewTransactor(db *sql.DB, opts ...TransactorOption) *Transactor {
	t := &Transactor{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LockKey reports the advisory lock key taken by every transaction, or zero
// when the Transactor takes none.
func (t *Transactor) LockKey() int64 {
	return t.lockKey
}

// RunInTx begins a transaction, stores it in the context passed to fn and
// commits when fn returns nil.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if t.lockKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, t.lockKey); err != nil {
			return err
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
