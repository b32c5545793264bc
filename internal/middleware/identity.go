package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/model"
)

const resolvedSessionKey = "resolvedSession"

// SetResolved attaches the authenticated session to the request.
func SetResolved(c echo.Context, r *model.ResolvedSession) {
	c.Set(resolvedSessionKey, r)
}

// Resolved returns the session attached by Authenticate, if any.
func Resolved(c echo.Context) (*model.ResolvedSession, bool) {
	r, ok := c.Get(resolvedSessionKey).(*model.ResolvedSession)
	return r, ok && r != nil
}

// currentUserID returns the authenticated user id, or "anon".
func currentUserID(c echo.Context) string {
	if r, ok := Resolved(c); ok {
		return r.UserID
	}
	return "anon"
}
