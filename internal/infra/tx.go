package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned by repositories when a compare-and-set update
// finds that the stored document version moved since it was read.
var ErrVersionConflict = errors.New("version conflict")

// Transactor runs a unit of work so that every repository write inside fn is
// committed together or not at all. Units of work that fail with
// ErrVersionConflict are re-run from scratch a bounded number of times.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

// Conn returns the transaction bound to ctx by a PostgresTransactor, or the
// pool itself when the call happens outside a unit of work.
func Conn(ctx context.Context, db *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// PostgresTransactor binds a pgx transaction to the context passed to fn.
type PostgresTransactor struct {
	db       *pgxpool.Pool
	attempts int
}

// NewPostgresTransactor builds a transactor retrying version conflicts up to attempts times.
func NewPostgresTransactor(db *pgxpool.Pool, attempts int) *PostgresTransactor {
	if attempts <= 0 {
		attempts = 1
	}
	return &PostgresTransactor{db: db, attempts: attempts}
}

// WithinTx runs fn inside a transaction. Nested calls join the outer transaction.
func (t *PostgresTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return retryConflicts(t.attempts, func() error { return t.run(ctx, fn) })
}

func (t *PostgresTransactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type memTxKey struct{}

// MemoryTransactor serialises units of work for the in-memory repositories.
// It has no rollback: callers validate before their first write.
type MemoryTransactor struct {
	mu       sync.Mutex
	attempts int
}

// NewMemoryTransactor constructs a transactor for tests and local runs.
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{attempts: 3}
}

// WithinTx runs fn while holding the transactor lock. Nested calls join the outer unit.
func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	return retryConflicts(t.attempts, func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		return fn(context.WithValue(ctx, memTxKey{}, true))
	})
}

func retryConflicts(attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = run()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}
