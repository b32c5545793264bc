package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
)

const userColumns = "id,username,email,password_hash,privilege,created_at,updated_at,deleted_at"

// UserRepo reads and writes the 'users' table.
type UserRepo struct{ DB DBTX }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		privilege string
		deletedAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &privilege, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	u.Privilege = model.Privilege(privilege)
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return &u, nil
}

// Create inserts u. A taken username yields a Conflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id,username,email,password_hash,privilege,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Privilege), u.CreatedAt, u.UpdatedAt)
	if isDuplicate(err) {
		return usernameConflict(u.Username)
	}
	if err != nil {
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// FindByID fetches a user by id, soft-deleted or not.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: find by id: %w", err)
	}
	return u, nil
}

// FindByUsername fetches a user by username, optionally ignoring soft-deleted rows.
func (r *UserRepo) FindByUsername(ctx context.Context, username string, activeOnly bool) (*model.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE username=?"
	if activeOnly {
		q += " AND deleted_at IS NULL"
	}
	u, err := scanUser(r.DB.QueryRowContext(ctx, q+" LIMIT 1", username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: find by username: %w", err)
	}
	return u, nil
}

// FindMany lists users newest first. The search term matches the id exactly
// or a substring of username or email.
func (r *UserRepo) FindMany(ctx context.Context, q model.UserQuery) ([]model.User, error) {
	var (
		where []string
		args  []any
	)
	if !q.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if term := strings.TrimSpace(q.SearchTerm); term != "" {
		like := "%" + escapeLike(term) + "%"
		where = append(where, "(id = ? OR username LIKE ? OR email LIKE ?)")
		args = append(args, term, like, like)
	}
	if q.Cursor != "" {
		where = append(where, "seq < (SELECT c.seq FROM users c WHERE c.id = ?)")
		args = append(args, q.Cursor)
	}
	query := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, pageSize(q.PageSize))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of upd and returns the new row.
func (r *UserRepo) Update(ctx context.Context, id string, upd model.UserUpdate, at time.Time) (*model.User, error) {
	sets := []string{"updated_at=?"}
	args := []any{at}
	if upd.Username != nil {
		sets = append(sets, "username=?")
		args = append(args, *upd.Username)
	}
	if upd.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, *upd.Email)
	}
	if upd.Privilege != nil {
		sets = append(sets, "privilege=?")
		args = append(args, string(*upd.Privilege))
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash=?")
		args = append(args, *upd.PasswordHash)
	}
	args = append(args, id)
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
	if isDuplicate(err) && upd.Username != nil {
		return nil, usernameConflict(*upd.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("users: update: %w", err)
	}
	return r.mustFind(ctx, id)
}

// SoftDelete marks the user deleted at the given time.
func (r *UserRepo) SoftDelete(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return r.setDeleted(ctx, id, sql.NullTime{Time: at, Valid: true}, at)
}

// Restore clears the soft-delete marker.
func (r *UserRepo) Restore(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return r.setDeleted(ctx, id, sql.NullTime{}, at)
}

func (r *UserRepo) setDeleted(ctx context.Context, id string, deletedAt sql.NullTime, at time.Time) (*model.User, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET deleted_at=?, updated_at=? WHERE id=?", deletedAt, at, id); err != nil {
		return nil, fmt.Errorf("users: set deleted_at: %w", err)
	}
	return r.mustFind(ctx, id)
}

// CountActiveAtTopPrivilege counts active users at the highest privilege.
// The matching rows are locked so that two concurrent removals inside
// transactions cannot both observe a count of two.
func (r *UserRepo) CountActiveAtTopPrivilege(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM (SELECT id FROM users WHERE privilege=? AND deleted_at IS NULL FOR UPDATE) t",
		string(model.TopPrivilege())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("users: count top privilege: %w", err)
	}
	return n, nil
}

func (r *UserRepo) mustFind(ctx context.Context, id string) (*model.User, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperror.NotFound("user", "id", id)
	}
	return u, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

const defaultPageSize = 10

func pageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	return n
}
