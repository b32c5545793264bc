package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
)

// RequireAuth rejects requests that carry no valid session.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := Resolved(c); !ok {
				return apperror.ErrAuthenticationRequired
			}
			return next(c)
		}
	}
}

// UserLoader loads a user by id, returning (nil, nil) when absent.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RequirePrivilege rejects requests whose user ranks below min. The user is
// reloaded rather than trusting the privilege captured at session resolution,
// so a demotion takes effect on the next request.
func RequirePrivilege(users UserLoader, min model.Privilege) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r, ok := Resolved(c)
			if !ok {
				return apperror.ErrAuthenticationRequired
			}
			u, err := users.FindByID(c.Request().Context(), r.UserID)
			if err != nil {
				return apperror.Storage(err)
			}
			if u == nil || !u.Active() {
				return apperror.ErrAuthenticationRequired
			}
			if !model.HasAtLeast(u.Privilege, min) {
				return apperror.ErrInsufficientPrivilege
			}
			return next(c)
		}
	}
}
