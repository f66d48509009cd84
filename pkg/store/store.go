// Package store implements PostgreSQL persistence for all domain
// aggregates. One Store serves every engine; methods are grouped per
// aggregate in sibling files.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert hits a uniqueness constraint
// the caller is expected to handle (idempotency keys).
var ErrDuplicate = errors.New("duplicate")

// Store wraps the shared database handle.
type Store struct {
	db *sqlx.DB
}

// New wraps an open handle. The caller owns the handle's lifecycle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// wrapGet normalizes sql.ErrNoRows into ErrNotFound with context.
func wrapGet(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("loading %s: %w", what, err)
}

// exec runs a statement and fails when nothing matched.
func (s *Store) exec(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
