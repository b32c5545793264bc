package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HeliumBERT/tracking/internal/service"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the MySQL service.Store.
type Store struct {
	db *sql.DB // nil inside a transaction
	q  DBTX
}

func NewStore(db *sql.DB) *Store { return &Store{db: db, q: db} }

var _ service.Store = (*Store)(nil)

func (s *Store) Sessions() service.SessionStore { return &SessionRepo{DB: s.q} }
func (s *Store) Users() service.UserStore       { return &UserRepo{DB: s.q} }
func (s *Store) Audit() service.AuditStore      { return &AuditRepo{DB: s.q} }

// InTx runs fn in a database transaction, committing when fn returns nil.
// Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}
