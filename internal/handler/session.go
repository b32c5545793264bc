package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/middleware"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
	"github.com/HeliumBERT/tracking/internal/utils"
)

// dbTimeout bounds the storage work of a single request.
const dbTimeout = 5 * time.Second

// CookieConfig controls how the session cookie is issued.
type CookieConfig struct {
	Secret     string
	MaxAge     time.Duration
	UsingHTTPS bool
}

// SessionHandler bundles dependencies for session endpoints.
type SessionHandler struct {
	Sessions *service.SessionService
	Cookie   CookieConfig
}

func NewSessionHandler(s *service.SessionService, cookie CookieConfig) *SessionHandler {
	return &SessionHandler{Sessions: s, Cookie: cookie}
}

// ----- DTOs -----

type sessionCreateReq struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=1024"`
}

type sessionFindResp struct {
	User model.UserIdentity `json:"user"`
}

// Create logs in and sets the signed session cookie.
func (h *SessionHandler) Create(c echo.Context) error {
	var req sessionCreateReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	sec, err := h.Sessions.Create(ctx, service.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return err
	}
	signed, err := utils.SignSessionCookie(h.Cookie.Secret, sec.Token, h.Cookie.MaxAge)
	if err != nil {
		return err
	}
	c.SetCookie(h.cookie(signed, int(h.Cookie.MaxAge/time.Second)))
	return c.NoContent(http.StatusNoContent)
}

// Current returns the identity behind the request's session.
func (h *SessionHandler) Current(c echo.Context) error {
	r, ok := middleware.Resolved(c)
	if !ok {
		return apperror.ErrAuthenticationRequired
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	id, err := h.Sessions.Current(ctx, r.Session.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionFindResp{User: id})
}

// Delete logs out the request's session and clears the cookie.
func (h *SessionHandler) Delete(c echo.Context) error {
	r, ok := middleware.Resolved(c)
	if !ok {
		return apperror.ErrAuthenticationRequired
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Sessions.DeleteSelf(ctx, r.UserID, r.Session.ID)
	if err != nil {
		return err
	}
	c.SetCookie(h.cookie("", -1))
	return c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     utils.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cookie.UsingHTTPS,
		SameSite: http.SameSiteLaxMode,
	}
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.BadRequest("Invalid request body.")
	}
	return c.Validate(req)
}
