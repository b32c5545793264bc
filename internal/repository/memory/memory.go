// Package memory is an in-process implementation of service.Store. It backs
// the service and HTTP tests and STORE_DRIVER=memory local runs. Transactions
// work on a copy of the data that replaces the live copy on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

const defaultPageSize = 10

type data struct {
	users    map[string]model.User
	sessions map[string]model.Session
	audit    []model.AuditLogEntry
	seq      int64
	created  map[string]int64 // user id -> insertion sequence, for stable ordering
}

func newData() *data {
	return &data{
		users:    map[string]model.User{},
		sessions: map[string]model.Session{},
		created:  map[string]int64{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.created {
		c.created[k] = v
	}
	c.audit = append([]model.AuditLogEntry(nil), d.audit...)
	c.seq = d.seq
	return c
}

type shared struct {
	mu             sync.Mutex
	live           *data
	auditErr       error
	sessionUpdates int
}

// Store is safe for concurrent use.
type Store struct {
	sh *shared
	tx *data // non-nil inside InTx
}

// New returns an empty store.
func New() *Store {
	return &Store{sh: &shared{live: newData()}}
}

var _ service.Store = (*Store)(nil)

// FailAuditAppends makes every later Append return err (nil clears it).
func (s *Store) FailAuditAppends(err error) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.auditErr = err
}

// SessionUpdates counts UpdateLastVerified calls that reached the store.
func (s *Store) SessionUpdates() int {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return s.sh.sessionUpdates
}

// SetLastVerified rewinds a session's activity timestamp.
func (s *Store) SetLastVerified(id string, at time.Time) bool {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	sess, ok := s.sh.live.sessions[id]
	if !ok {
		return false
	}
	sess.LastVerifiedAt = at
	s.sh.live.sessions[id] = sess
	return true
}

// AuditEntries returns a copy of every appended entry in append order.
func (s *Store) AuditEntries() []model.AuditLogEntry {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return append([]model.AuditLogEntry(nil), s.sh.live.audit...)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Sessions() service.SessionStore { return sessionStore{s} }
func (s *Store) Users() service.UserStore       { return userStore{s} }
func (s *Store) Audit() service.AuditStore      { return auditStore{s} }

// InTx runs fn against a copy of the data, publishing the copy only when fn
// succeeds. Nested calls reuse the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	work := s.sh.live.clone()
	if err := fn(&Store{sh: s.sh, tx: work}); err != nil {
		return err
	}
	s.sh.live = work
	return nil
}

// with runs f on the current data, holding the lock unless inside a transaction.
func (s *Store) with(f func(d *data) error) error {
	if s.tx != nil {
		return f(s.tx)
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return f(s.sh.live)
}

type sessionStore struct{ s *Store }

func (r sessionStore) Create(ctx context.Context, ns model.NewSession) (*model.SessionWithUser, error) {
	var out *model.SessionWithUser
	err := r.s.with(func(d *data) error {
		u, ok := d.users[ns.UserID]
		if !ok {
			return apperror.NotFound("user", "id", ns.UserID)
		}
		sess := model.Session{
			ID:             ns.ID,
			SecretHash:     ns.SecretHash,
			UserID:         ns.UserID,
			CreatedAt:      ns.CreatedAt,
			LastVerifiedAt: ns.CreatedAt,
		}
		d.sessions[sess.ID] = sess
		out = &model.SessionWithUser{Session: sess, User: u}
		return nil
	})
	return out, err
}

func (r sessionStore) FindByID(ctx context.Context, id string) (*model.SessionWithUser, error) {
	var out *model.SessionWithUser
	err := r.s.with(func(d *data) error {
		out = joinSession(d, id)
		return nil
	})
	return out, err
}

func (r sessionStore) UpdateLastVerified(ctx context.Context, id string, at time.Time) (*model.SessionWithUser, error) {
	var out *model.SessionWithUser
	err := r.s.with(func(d *data) error {
		r.s.sh.sessionUpdates++
		sess, ok := d.sessions[id]
		if !ok {
			return apperror.NotFound("session", "id", id)
		}
		sess.LastVerifiedAt = at
		d.sessions[id] = sess
		out = joinSession(d, id)
		return nil
	})
	return out, err
}

func (r sessionStore) Delete(ctx context.Context, id string) (*model.SessionWithUser, error) {
	var out *model.SessionWithUser
	err := r.s.with(func(d *data) error {
		out = joinSession(d, id)
		if out == nil {
			return apperror.NotFound("session", "id", id)
		}
		delete(d.sessions, id)
		return nil
	})
	return out, err
}

func (r sessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.s.with(func(d *data) error {
		for id, sess := range d.sessions {
			if sess.UserID == userID {
				delete(d.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func joinSession(d *data, id string) *model.SessionWithUser {
	sess, ok := d.sessions[id]
	if !ok {
		return nil
	}
	return &model.SessionWithUser{Session: sess, User: d.users[sess.UserID]}
}

type userStore struct{ s *Store }

func (r userStore) Create(ctx context.Context, u *model.User) error {
	return r.s.with(func(d *data) error {
		if taken(d, u.Username, "") {
			return usernameConflict(u.Username)
		}
		d.seq++
		d.created[u.ID] = d.seq
		d.users[u.ID] = *u
		return nil
	})
}

func (r userStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	var out *model.User
	err := r.s.with(func(d *data) error {
		if u, ok := d.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (r userStore) FindByUsername(ctx context.Context, username string, activeOnly bool) (*model.User, error) {
	var out *model.User
	err := r.s.with(func(d *data) error {
		for _, u := range d.users {
			if !strings.EqualFold(u.Username, username) {
				continue
			}
			if activeOnly && !u.Active() {
				continue
			}
			u := u
			out = &u
			return nil
		}
		return nil
	})
	return out, err
}

func (r userStore) FindMany(ctx context.Context, q model.UserQuery) ([]model.User, error) {
	var out []model.User
	err := r.s.with(func(d *data) error {
		all := make([]model.User, 0, len(d.users))
		for _, u := range d.users {
			all = append(all, u)
		}
		// newest first
		sort.Slice(all, func(i, j int) bool { return d.created[all[i].ID] > d.created[all[j].ID] })
		term := strings.ToLower(strings.TrimSpace(q.SearchTerm))
		started := q.Cursor == ""
		size := q.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		for _, u := range all {
			if !started {
				started = u.ID == q.Cursor
				continue
			}
			if !q.IncludeDeleted && !u.Active() {
				continue
			}
			if term != "" && u.ID != q.SearchTerm &&
				!strings.Contains(strings.ToLower(u.Username), term) &&
				!strings.Contains(strings.ToLower(u.Email), term) {
				continue
			}
			out = append(out, u)
			if len(out) == size {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r userStore) Update(ctx context.Context, id string, upd model.UserUpdate, at time.Time) (*model.User, error) {
	var out *model.User
	err := r.s.with(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return apperror.NotFound("user", "id", id)
		}
		if upd.Username != nil {
			if taken(d, *upd.Username, id) {
				return usernameConflict(*upd.Username)
			}
			u.Username = *upd.Username
		}
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		if upd.Privilege != nil {
			u.Privilege = *upd.Privilege
		}
		if upd.PasswordHash != nil {
			u.PasswordHash = *upd.PasswordHash
		}
		u.UpdatedAt = at
		d.users[id] = u
		out = &u
		return nil
	})
	return out, err
}

func (r userStore) SoftDelete(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return r.setDeleted(id, &at, at)
}

func (r userStore) Restore(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return r.setDeleted(id, nil, at)
}

func (r userStore) setDeleted(id string, deletedAt *time.Time, at time.Time) (*model.User, error) {
	var out *model.User
	err := r.s.with(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return apperror.NotFound("user", "id", id)
		}
		u.DeletedAt = deletedAt
		u.UpdatedAt = at
		d.users[id] = u
		out = &u
		return nil
	})
	return out, err
}

func (r userStore) CountActiveAtTopPrivilege(ctx context.Context) (int, error) {
	top := model.TopPrivilege()
	n := 0
	err := r.s.with(func(d *data) error {
		for _, u := range d.users {
			if u.Active() && u.Privilege == top {
				n++
			}
		}
		return nil
	})
	return n, err
}

// taken reports whether a user other than exceptID holds username. Soft-deleted
// users keep their name, matching the unique index in MySQL.
func taken(d *data, username, exceptID string) bool {
	for id, u := range d.users {
		if id != exceptID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

func usernameConflict(username string) error {
	return apperror.Conflict("The provided data conflicts with existing data.",
		map[string]any{"field": "username", "value": username})
}

type auditStore struct{ s *Store }

func (r auditStore) Append(ctx context.Context, e *model.AuditLogEntry) error {
	return r.s.with(func(d *data) error {
		if err := r.s.sh.auditErr; err != nil {
			return err
		}
		d.audit = append(d.audit, *e)
		return nil
	})
}

func (r auditStore) List(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error) {
	var out []model.AuditLogEntry
	err := r.s.with(func(d *data) error {
		size := q.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		started := q.Cursor == ""
		for i := len(d.audit) - 1; i >= 0; i-- {
			e := d.audit[i]
			if !started {
				started = e.ID == q.Cursor
				continue
			}
			if q.Action != "" && e.Action != q.Action {
				continue
			}
			out = append(out, e)
			if len(out) == size {
				break
			}
		}
		return nil
	})
	return out, err
}
