package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
)

// SessionRepo reads and writes the 'sessions' table. Reads join the owning
// user so that callers get the session and its user in one round trip.
type SessionRepo struct{ DB DBTX }

const sessionSelect = `SELECT s.id, s.secret_hash, s.user_id, s.created_at, s.last_verified_at,
 u.id, u.username, u.email, u.password_hash, u.privilege, u.created_at, u.updated_at, u.deleted_at
 FROM sessions s JOIN users u ON u.id = s.user_id`

// Create inserts a session whose last verification is its creation time.
func (r *SessionRepo) Create(ctx context.Context, ns model.NewSession) (*model.SessionWithUser, error) {
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, secret_hash, user_id, created_at, last_verified_at) VALUES (?,?,?,?,?)",
		ns.ID, ns.SecretHash, ns.UserID, ns.CreatedAt, ns.CreatedAt); err != nil {
		return nil, fmt.Errorf("sessions: insert: %w", err)
	}
	return r.mustFind(ctx, ns.ID)
}

// FindByID returns (nil, nil) when no session has this id.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.SessionWithUser, error) {
	var (
		s         model.SessionWithUser
		privilege string
		deletedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, sessionSelect+" WHERE s.id=? LIMIT 1", id).Scan(
		&s.ID, &s.SecretHash, &s.UserID, &s.CreatedAt, &s.LastVerifiedAt,
		&s.User.ID, &s.User.Username, &s.User.Email, &s.User.PasswordHash, &privilege,
		&s.User.CreatedAt, &s.User.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: find: %w", err)
	}
	s.User.Privilege = model.Privilege(privilege)
	if deletedAt.Valid {
		t := deletedAt.Time
		s.User.DeletedAt = &t
	}
	return &s, nil
}

// UpdateLastVerified records activity on the session.
func (r *SessionRepo) UpdateLastVerified(ctx context.Context, id string, at time.Time) (*model.SessionWithUser, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_verified_at=? WHERE id=?", at, id); err != nil {
		return nil, fmt.Errorf("sessions: touch: %w", err)
	}
	return r.mustFind(ctx, id)
}

// Delete removes the session and returns it as it was.
func (r *SessionRepo) Delete(ctx context.Context, id string) (*model.SessionWithUser, error) {
	s, err := r.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id); err != nil {
		return nil, fmt.Errorf("sessions: delete: %w", err)
	}
	return s, nil
}

// DeleteAllForUser removes every session of a user.
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE user_id=?", userID)
	if err != nil {
		return 0, fmt.Errorf("sessions: delete for user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sessions: rows affected: %w", err)
	}
	return n, nil
}

func (r *SessionRepo) mustFind(ctx context.Context, id string) (*model.SessionWithUser, error) {
	s, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperror.NotFound("session", "id", id)
	}
	return s, nil
}
