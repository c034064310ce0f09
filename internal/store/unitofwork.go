package store

import (
	"context"
	"database/sql"
)

type txKey struct{}

// Querier is satisfied by both *sql.DB and *sql.Tx, so query helpers can run
// against either an ambient transaction or the bare connection.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecContext, QueryContext and QueryRowContext run against the ambient
// transaction in ctx if one is open (via WithTransaction/WithUnitOfWork),
// otherwise against the bare connection. Repository packages call these
// instead of holding a *sql.DB themselves.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, query, args...)
}

func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, query, args...)
}

func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, query, args...)
}

// conn returns the ambient transaction from ctx if one is open, otherwise
// the store's bare database handle. Every query helper in this module calls
// this instead of touching s.db directly, so nested WithUnitOfWork/
// WithTransaction calls transparently share the outer scope.
func (s *Store) conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithUnitOfWork runs fn with a database session in scope, flushing pending
// writes when fn returns. If ctx already carries a unit of work (nested
// call), fn reuses it rather than opening a second one — spec.md §4.1: "every
// database operation must execute inside at least one unit of work;
// leaving the innermost unit flushes pending writes."
func (s *Store) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.WithTransaction(ctx, fn)
}

// WithTransaction runs fn inside a database transaction. Nested calls reuse
// the outer transaction rather than opening a new one: the embedded engine
// is single-writer and does not support true nested transactions (spec.md
// §4.1, §9 "Open question" — this module flattens nested calls into the
// outer transaction rather than rejecting them or emulating them with
// savepoints).
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
