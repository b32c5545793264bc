package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
)

const maxPageSize = 100

// CreateUserInput is the payload for creating a user.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	Privilege model.Privilege
}

// UpdateUserInput changes profile fields; nil means unchanged.
type UpdateUserInput struct {
	Username  *string
	Email     *string
	Privilege *model.Privilege
}

// UserPage is one page of users, newest first.
type UserPage struct {
	List       []model.User
	NextCursor *string
}

// UserService implements the user flows. Every mutation reloads the actor,
// checks the privilege rules and writes its audit entry in one transaction.
type UserService struct {
	Deps
}

func NewUserService(d Deps) (*UserService, error) {
	if d.Store == nil || d.Hasher == nil {
		return nil, errors.New("user service needs a store and a password hasher")
	}
	d.defaults()
	return &UserService{Deps: d}, nil
}

// Create adds a user. The actor may not grant a privilege above its own.
func (s *UserService) Create(ctx context.Context, actorID string, in CreateUserInput) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateProfile(&in.Username, &in.Email); err != nil {
		return model.User{}, err
	}
	if in.Password == "" {
		return model.User{}, apperror.BadRequest("A password is required.")
	}
	if in.Privilege == "" {
		in.Privilege = model.PrivilegeBasic
	}
	if !in.Privilege.Valid() {
		return model.User{}, apperror.BadRequest("Unknown privilege level.")
	}
	hash, err := s.Hasher.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	var (
		user  model.User
		entry model.AuditLogEntry
	)
	err = s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !model.CanAssignPrivilege(actor.Privilege, in.Privilege) {
			return apperror.Forbidden("You cannot grant a privilege higher than your own.")
		}
		now := s.Now().UTC()
		user = model.User{
			ID:           uuid.NewString(),
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
			Privilege:    in.Privilege,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().Create(ctx, &user); err != nil {
			return err
		}
		entry, err = s.Audit.Record(ctx, tx, model.ActionCreate, model.ActorOf(*actor), model.UserSubjectOf(user))
		return err
	})
	if err != nil {
		return model.User{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	s.Log.Info("user created", zap.String("user_id", user.ID), zap.String("actor_id", actorID))
	return user, nil
}

// FindByID returns a user and records the read. Soft-deleted users are only
// visible to actors allowed to see them.
func (s *UserService) FindByID(ctx context.Context, actorID, id string) (model.User, error) {
	var (
		user  model.User
		entry model.AuditLogEntry
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		u, err := tx.Users().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil || (!u.Active() && !model.CanSeeSoftDeleted(actor.Privilege)) {
			return apperror.NotFound("user", "id", id)
		}
		user = *u
		entry, err = s.Audit.Record(ctx, tx, model.ActionRead, model.ActorOf(*actor), model.UserSubjectOf(user))
		return err
	})
	if err != nil {
		return model.User{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	return user, nil
}

// FindMany lists users. Soft-deleted users are included only for actors
// allowed to see them.
func (s *UserService) FindMany(ctx context.Context, actorID string, q model.UserQuery) (UserPage, error) {
	actor, err := loadActor(ctx, s.Store, actorID)
	if err != nil {
		return UserPage{}, apperror.Storage(err)
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = defaultPageSize
	case q.PageSize > maxPageSize:
		q.PageSize = maxPageSize
	}
	q.IncludeDeleted = model.CanSeeSoftDeleted(actor.Privilege)
	list, err := s.Store.Users().FindMany(ctx, q)
	if err != nil {
		return UserPage{}, apperror.Storage(err)
	}
	page := UserPage{List: list}
	if len(list) >= q.PageSize {
		next := list[len(list)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// UpdateOther changes another user's profile. The actor must outrank the
// target and may not grant above its own privilege.
func (s *UserService) UpdateOther(ctx context.Context, actorID, id string, in UpdateUserInput) (model.User, error) {
	if err := validateUpdate(&in); err != nil {
		return model.User{}, err
	}
	return s.update(ctx, actorID, id, in, func(actor, target *model.User) error {
		if actor.ID == target.ID {
			return apperror.BadRequest("Use the current-user endpoint to update yourself.")
		}
		if !model.CanManage(actor.Privilege, target.Privilege) {
			return apperror.Forbidden("You cannot manage this user.")
		}
		return nil
	})
}

// UpdateSelf changes the actor's own profile. Lowering one's own privilege is
// allowed unless it would leave no active user at the top privilege.
func (s *UserService) UpdateSelf(ctx context.Context, actorID string, in UpdateUserInput) (model.User, error) {
	if err := validateUpdate(&in); err != nil {
		return model.User{}, err
	}
	return s.update(ctx, actorID, actorID, in, nil)
}

func (s *UserService) update(ctx context.Context, actorID, id string, in UpdateUserInput, authorize func(actor, target *model.User) error) (model.User, error) {
	var (
		user  model.User
		entry model.AuditLogEntry
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		target := actor
		if id != actorID {
			target, err = tx.Users().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if target == nil || !target.Active() {
				return apperror.NotFound("user", "id", id)
			}
		}
		if authorize != nil {
			if err := authorize(actor, target); err != nil {
				return err
			}
		}
		if in.Privilege != nil && *in.Privilege != target.Privilege {
			if !model.CanAssignPrivilege(actor.Privilege, *in.Privilege) {
				return apperror.Forbidden("You cannot grant a privilege higher than your own.")
			}
			if err := ensureTopRemains(ctx, tx, *target); err != nil {
				return err
			}
		}
		updated, err := tx.Users().Update(ctx, target.ID, model.UserUpdate{
			Username:  in.Username,
			Email:     in.Email,
			Privilege: in.Privilege,
		}, s.Now().UTC())
		if err != nil {
			return err
		}
		user = *updated
		entry, err = s.Audit.Record(ctx, tx, model.ActionUpdate, model.ActorOf(*actor), model.UserSubjectOf(user))
		return err
	})
	if err != nil {
		return model.User{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	return user, nil
}

// ChangePassword replaces the actor's password after checking the current one.
// Other sessions of the actor stay valid.
func (s *UserService) ChangePassword(ctx context.Context, actorID, current, next string) error {
	if next == "" {
		return apperror.BadRequest("A new password is required.")
	}
	actor, err := loadActor(ctx, s.Store, actorID)
	if err != nil {
		return apperror.Storage(err)
	}
	if !s.Hasher.VerifyPassword(actor.PasswordHash, current) {
		return apperror.BadRequest("Incorrect password.")
	}
	hash, err := s.Hasher.HashPassword(next)
	if err != nil {
		return err
	}
	var entry model.AuditLogEntry
	err = s.Store.InTx(ctx, func(tx Store) error {
		updated, err := tx.Users().Update(ctx, actor.ID, model.UserUpdate{PasswordHash: &hash}, s.Now().UTC())
		if err != nil {
			return err
		}
		entry, err = s.Audit.Record(ctx, tx, model.ActionUpdate, model.ActorOf(*actor), model.UserSubjectOf(*updated))
		return err
	})
	if err != nil {
		return apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	return nil
}

// SoftDeleteOther soft-deletes a user the actor outranks and revokes all of
// that user's sessions.
func (s *UserService) SoftDeleteOther(ctx context.Context, actorID, id string) (model.UserDeleteResult, error) {
	if id == actorID {
		return model.UserDeleteResult{}, apperror.BadRequest("Use the current-user endpoint to delete yourself.")
	}
	return s.softDelete(ctx, actorID, id, func(actor, target *model.User) error {
		if !model.CanManage(actor.Privilege, target.Privilege) {
			return apperror.Forbidden("You cannot manage this user.")
		}
		return nil
	})
}

// SoftDeleteSelf soft-deletes the actor and revokes all of its sessions,
// unless it is the last active user at the top privilege.
func (s *UserService) SoftDeleteSelf(ctx context.Context, actorID string) (model.UserDeleteResult, error) {
	return s.softDelete(ctx, actorID, actorID, nil)
}

func (s *UserService) softDelete(ctx context.Context, actorID, id string, authorize func(actor, target *model.User) error) (model.UserDeleteResult, error) {
	var (
		res   model.UserDeleteResult
		entry model.AuditLogEntry
		n     int64
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		target := actor
		if id != actorID {
			target, err = tx.Users().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if target == nil || !target.Active() {
				return apperror.NotFound("user", "id", id)
			}
		}
		if authorize != nil {
			if err := authorize(actor, target); err != nil {
				return err
			}
		}
		if err := ensureTopRemains(ctx, tx, *target); err != nil {
			return err
		}
		deleted, err := tx.Users().SoftDelete(ctx, target.ID, s.Now().UTC())
		if err != nil {
			return err
		}
		if n, err = tx.Sessions().DeleteAllForUser(ctx, target.ID); err != nil {
			return err
		}
		entry, err = s.Audit.Record(ctx, tx, model.ActionSoftDelete, model.ActorOf(*actor), model.UserSubjectOf(*deleted))
		if err != nil {
			return err
		}
		res = model.UserDeleteResult{ID: deleted.ID, Username: deleted.Username, DeletedAt: *deleted.DeletedAt}
		return nil
	})
	if err != nil {
		return model.UserDeleteResult{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	s.Log.Info("user soft-deleted",
		zap.String("user_id", res.ID),
		zap.String("actor_id", actorID),
		zap.Int64("sessions_revoked", n))
	return res, nil
}

// Restore clears the soft-delete marker of a user the actor outranks.
// Sessions revoked at deletion stay revoked.
func (s *UserService) Restore(ctx context.Context, actorID, id string) (model.User, error) {
	var (
		user  model.User
		entry model.AuditLogEntry
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		target, err := tx.Users().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if target == nil {
			return apperror.NotFound("user", "id", id)
		}
		if !model.CanManage(actor.Privilege, target.Privilege) {
			return apperror.Forbidden("You cannot manage this user.")
		}
		if target.Active() {
			return apperror.BadRequest("User is not deleted.")
		}
		restored, err := tx.Users().Restore(ctx, id, s.Now().UTC())
		if err != nil {
			return err
		}
		user = *restored
		entry, err = s.Audit.Record(ctx, tx, model.ActionRestore, model.ActorOf(*actor), model.UserSubjectOf(user))
		return err
	})
	if err != nil {
		return model.User{}, apperror.Storage(err)
	}
	s.Audit.Publish(ctx, entry)
	return user, nil
}

// ensureTopRemains fails when removing target from the top privilege, by
// deletion or demotion, would leave no active user there. It must run inside
// the transaction that performs the removal.
func ensureTopRemains(ctx context.Context, tx Store, target model.User) error {
	if target.Privilege != model.TopPrivilege() || !target.Active() {
		return nil
	}
	n, err := tx.Users().CountActiveAtTopPrivilege(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperror.ErrLastPrivilegedPrincipal
	}
	return nil
}

func validateProfile(username, email *string) error {
	if username != nil && *username == "" {
		return apperror.BadRequest("Username must not be empty.")
	}
	if email != nil && !strings.Contains(*email, "@") {
		return apperror.BadRequest("Email address is not valid.")
	}
	return nil
}

func validateUpdate(in *UpdateUserInput) error {
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		in.Username = &v
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		in.Email = &v
	}
	if in.Privilege != nil && !in.Privilege.Valid() {
		return apperror.BadRequest("Unknown privilege level.")
	}
	return validateProfile(in.Username, in.Email)
}
