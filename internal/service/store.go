package service

import (
	"context"
	"time"

	"github.com/HeliumBERT/tracking/internal/model"
)

// SessionStore persists sessions. Lookups return (nil, nil) when the row is
// absent; mutations of an absent row return an apperror NotFound.
type SessionStore interface {
	Create(ctx context.Context, s model.NewSession) (*model.SessionWithUser, error)
	FindByID(ctx context.Context, id string) (*model.SessionWithUser, error)
	UpdateLastVerified(ctx context.Context, id string, at time.Time) (*model.SessionWithUser, error)
	Delete(ctx context.Context, id string) (*model.SessionWithUser, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// UserStore persists users. A duplicate username on Create or Update yields
// an apperror Conflict.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string, activeOnly bool) (*model.User, error)
	FindMany(ctx context.Context, q model.UserQuery) ([]model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate, at time.Time) (*model.User, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (*model.User, error)
	Restore(ctx context.Context, id string, at time.Time) (*model.User, error)
	CountActiveAtTopPrivilege(ctx context.Context) (int, error)
}

// AuditStore is append-only.
type AuditStore interface {
	Append(ctx context.Context, e *model.AuditLogEntry) error
	List(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error)
}

// Store groups the stores and runs work in one transaction. Inside fn every
// store obtained from tx shares the transaction; an error from fn rolls back.
type Store interface {
	Sessions() SessionStore
	Users() UserStore
	Audit() AuditStore
	InTx(ctx context.Context, fn func(tx Store) error) error
}
