package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/utils"
)

const defaultPageSize = 10

// SessionConfig holds the session lifetime knobs.
//
// A session whose last verification is InactivityTimeout or more in the past
// is expired and removed on the next lookup. LastVerifiedAt is only written
// back once it is ActivityCheckInterval old, so that most requests validate
// without a write.
type SessionConfig struct {
	InactivityTimeout     time.Duration
	ActivityCheckInterval time.Duration
}

// Validate rejects configurations under which an active session could expire
// between two activity writes.
func (c SessionConfig) Validate() error {
	if c.InactivityTimeout <= 0 {
		return errors.New("session inactivity timeout must be positive")
	}
	if c.ActivityCheckInterval < 0 {
		return errors.New("session activity check interval must not be negative")
	}
	if c.ActivityCheckInterval > c.InactivityTimeout {
		return fmt.Errorf("session activity check interval (%s) exceeds inactivity timeout (%s)",
			c.ActivityCheckInterval, c.InactivityTimeout)
	}
	return nil
}

// Deps are the collaborators shared by the services.
type Deps struct {
	Store  Store
	Hasher *utils.PasswordHasher
	Audit  *AuditRecorder
	Log    *zap.Logger
	Now    func() time.Time
}

func (d *Deps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = NewAuditRecorder(d.Now, nil, d.Log)
	}
}

// Credentials is a login attempt.
type Credentials struct {
	Username string
	Password string
}

// SessionService owns the session lifecycle: login, validation with lazy
// expiry, logout and revocation.
type SessionService struct {
	Deps
	cfg SessionConfig

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(d Deps, cfg SessionConfig) (*SessionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Store == nil || d.Hasher == nil {
		return nil, errors.New("session service needs a store and a password hasher")
	}
	d.defaults()
	return &SessionService{Deps: d, cfg: cfg}, nil
}

// Create verifies the credentials against an active user and opens a session.
// An unknown username and a wrong password are indistinguishable to the caller.
func (s *SessionService) Create(ctx context.Context, cred Credentials) (utils.SessionSecurity, error) {
	user, err := s.Store.Users().FindByUsername(ctx, cred.Username, true)
	if err != nil {
		return utils.SessionSecurity{}, apperror.Storage(err)
	}
	if user == nil {
		// keep the response time close to that of a real verification
		s.Hasher.VerifyPassword(s.decoyHash(), cred.Password)
		return utils.SessionSecurity{}, apperror.ErrInvalidCredentials
	}
	if !s.Hasher.VerifyPassword(user.PasswordHash, cred.Password) {
		return utils.SessionSecurity{}, apperror.ErrInvalidCredentials
	}

	sec, err := utils.NewSessionSecurity()
	if err != nil {
		return utils.SessionSecurity{}, err
	}
	var entry model.AuditLogEntry
	err = s.Store.InTx(ctx, func(tx Store) error {
		created, err := tx.Sessions().Create(ctx, model.NewSession{
			ID:         sec.ID,
			SecretHash: utils.EncodeForStorage(sec.SecretHash[:]),
			UserID:     user.ID,
			CreatedAt:  s.Now().UTC(),
		})
		if err != nil {
			return err
		}
		entry, err = s.Audit.Record(ctx, tx, model.ActionCreate, model.ActorOf(created.User), model.SessionSubjectOf(*created))
		return err
	})
	if err != nil {
		return utils.SessionSecurity{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	s.Log.Info("session created", zap.String("user_id", user.ID))
	return sec, nil
}

func (s *SessionService) decoyHash() string {
	s.dummyOnce.Do(func() {
		secret, err := utils.GenerateOpaqueID()
		if err != nil {
			return
		}
		s.dummyHash, _ = s.Hasher.HashPassword(secret)
	})
	return s.dummyHash
}

// FindByID returns the session with its user, or nil when it does not exist
// or has expired. Expired sessions are deleted as a side effect.
func (s *SessionService) FindByID(ctx context.Context, id string) (*model.SessionWithUser, error) {
	sess, err := s.Store.Sessions().FindByID(ctx, id)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	if sess == nil {
		return nil, nil
	}
	if s.Now().Sub(sess.LastVerifiedAt) >= s.cfg.InactivityTimeout {
		if _, err := s.Store.Sessions().Delete(ctx, id); err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Storage(err)
		}
		return nil, nil
	}
	return sess, nil
}

// Validate resolves an (id, secret) pair to the session owner. It returns nil
// for an unknown or expired session, a wrong secret, or a soft-deleted owner.
func (s *SessionService) Validate(ctx context.Context, id, secret string) (*model.ResolvedSession, error) {
	sess, err := s.FindByID(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	if !utils.CompareSecret(secret, sess.SecretHash) {
		return nil, nil
	}
	now := s.Now().UTC()
	if now.Sub(sess.LastVerifiedAt) >= s.cfg.ActivityCheckInterval {
		updated, err := s.Store.Sessions().UpdateLastVerified(ctx, id, now)
		if errors.Is(err, apperror.ErrNotFound) {
			// logged out concurrently
			return nil, nil
		}
		if err != nil {
			return nil, apperror.Storage(err)
		}
		sess = updated
	}
	if !sess.User.Active() {
		return nil, nil
	}
	return &model.ResolvedSession{
		Session:   sess.Session,
		UserID:    sess.User.ID,
		Username:  sess.User.Username,
		Privilege: sess.User.Privilege,
	}, nil
}

// Current returns the identity behind an already resolved session.
func (s *SessionService) Current(ctx context.Context, sessionID string) (model.UserIdentity, error) {
	sess, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return model.UserIdentity{}, err
	}
	if sess == nil || !sess.User.Active() {
		return model.UserIdentity{}, apperror.NotFound("session", "id", sessionID)
	}
	return sess.User.Identity(), nil
}

// DeleteSelf logs out sessionID and records the deletion with actorID as the
// actor, in one transaction.
func (s *SessionService) DeleteSelf(ctx context.Context, actorID, sessionID string) (model.SessionDeleteResult, error) {
	var (
		res   model.SessionDeleteResult
		entry model.AuditLogEntry
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		deleted, err := tx.Sessions().Delete(ctx, sessionID)
		if err != nil {
			return err
		}
		actor := model.Actor{ID: actorID}
		if deleted.User.ID == actorID {
			actor.Username = deleted.User.Username
		}
		entry, err = s.Audit.Record(ctx, tx, model.ActionDelete, actor, model.SessionSubjectOf(*deleted))
		if err != nil {
			return err
		}
		res.User = model.SessionUser{ID: deleted.User.ID, Username: deleted.User.Username}
		return nil
	})
	if err != nil {
		return model.SessionDeleteResult{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	return res, nil
}

// RevokeAllForUser deletes every session userID holds and records one DELETE
// entry for them when any existed. It returns the number removed.
func (s *SessionService) RevokeAllForUser(ctx context.Context, actorID, userID string) (int64, error) {
	var (
		n       int64
		entries []model.AuditLogEntry
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		target, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperror.NotFound("user", "id", userID)
		}
		if actor.ID != target.ID && !model.CanManage(actor.Privilege, target.Privilege) {
			return apperror.Forbidden("You cannot manage this user.")
		}
		n, err = tx.Sessions().DeleteAllForUser(ctx, target.ID)
		if err != nil || n == 0 {
			return err
		}
		e, err := s.Audit.Record(ctx, tx, model.ActionDelete, model.ActorOf(*actor), model.SessionSubject{UserID: target.ID, Username: target.Username})
		entries = append(entries, e)
		return err
	})
	if err != nil {
		return 0, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entries...)
	return n, nil
}

// loadActor reloads the acting user so that authorization decisions never
// rely on a privilege cached at session resolution.
func loadActor(ctx context.Context, st Store, actorID string) (*model.User, error) {
	u, err := st.Users().FindByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active() {
		return nil, apperror.ErrAuthenticationRequired
	}
	return u, nil
}
