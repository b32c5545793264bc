package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/utils"
)

// SessionResolver validates a session id and secret. A nil result with a nil
// error means the request is unauthenticated.
type SessionResolver interface {
	Validate(ctx context.Context, id, secret string) (*model.ResolvedSession, error)
}

// SessionToken extracts the session token from the signed cookie or, failing
// that, the Authorization header ("id.secret" with an optional "Bearer "
// prefix). A missing token, a bad cookie signature and a malformed token all
// report false.
func SessionToken(c echo.Context, cookieSecret string) (utils.SessionToken, bool) {
	raw := ""
	if ck, err := c.Cookie(utils.SessionCookieName); err == nil && ck.Value != "" {
		if v, err := utils.VerifySessionCookie(cookieSecret, ck.Value); err == nil {
			raw = v
		}
	}
	if raw == "" {
		h := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			h = strings.TrimSpace(h[7:])
		}
		raw = h
	}
	if raw == "" {
		return utils.SessionToken{}, false
	}
	tok, err := utils.ParseToken(raw)
	if err != nil {
		return utils.SessionToken{}, false
	}
	return tok, true
}

// Authenticate resolves the request's session token, when there is one, and
// attaches the result with SetResolved. It never rejects a request on its own
// except when the session store fails; RequireAuth does the gating.
func Authenticate(resolver SessionResolver, cookieSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := SessionToken(c, cookieSecret)
			if !ok {
				return next(c)
			}
			r, err := resolver.Validate(c.Request().Context(), tok.ID, tok.Secret)
			if err != nil {
				return err
			}
			if r != nil {
				SetResolved(c, r)
			}
			return next(c)
		}
	}
}
