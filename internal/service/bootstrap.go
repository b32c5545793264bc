package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/utils"
)

// EnsureAdmin creates a user at the top privilege when none is active, so a
// fresh deployment can be administered. It reports whether a user was created.
// No audit entry is written since there is no actor.
func EnsureAdmin(ctx context.Context, store Store, hasher *utils.PasswordHasher, username, email, password string, log *zap.Logger) (bool, error) {
	if username == "" || password == "" {
		return false, errors.New("bootstrap admin needs a username and a password")
	}
	created := false
	err := store.InTx(ctx, func(tx Store) error {
		n, err := tx.Users().CountActiveAtTopPrivilege(ctx)
		if err != nil || n > 0 {
			return err
		}
		hash, err := hasher.HashPassword(password)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		u := model.User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Privilege:    model.TopPrivilege(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().Create(ctx, &u); err != nil {
			return err
		}
		created = true
		log.Warn("no active admin found, bootstrap admin created", zap.String("username", username))
		return nil
	})
	if err != nil {
		return false, apperror.Storage(err)
	}
	return created, nil
}
