// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/handler"
	"github.com/HeliumBERT/tracking/internal/middleware"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

// Deps is everything the routes need.
type Deps struct {
	Sessions *service.SessionService
	Users    *service.UserService
	Audit    *service.AuditService
	// UserLoader backs the privilege gate; usually the store's user repository.
	UserLoader middleware.UserLoader
	Health     handler.Pinger
	Cookie     handler.CookieConfig
	// LoginLimiter guards POST /api/session. Nil disables it.
	LoginLimiter echo.MiddlewareFunc
	Log          *zap.Logger
}

// RegisterRoutes installs the error handler, validator, global middleware
// and every API route.
func RegisterRoutes(e *echo.Echo, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Authenticate(d.Sessions, d.Cookie.Secret))

	e.GET("/healthz", handler.Health(d.Health))

	registerSession(e, d)
	registerUsers(e, d)
	registerAudit(e, d)
}

func registerSession(e *echo.Echo, d Deps) {
	h := handler.NewSessionHandler(d.Sessions, d.Cookie)
	g := e.Group("/api/session")

	if d.LoginLimiter != nil {
		g.POST("", h.Create, d.LoginLimiter)
	} else {
		g.POST("", h.Create)
	}
	g.GET("/current", h.Current, middleware.RequireAuth())
	g.DELETE("/current", h.Delete, middleware.RequireAuth())
}

func registerUsers(e *echo.Echo, d Deps) {
	h := handler.NewUserHandler(d.Users, d.Sessions)
	g := e.Group("/api/users", middleware.RequireAuth())
	basic := middleware.RequirePrivilege(d.UserLoader, model.PrivilegeBasic)
	admin := middleware.RequirePrivilege(d.UserLoader, model.PrivilegeAdmin)

	g.GET("", h.List, basic)
	g.POST("", h.Create, admin)

	// self-service; static segments win over :id
	g.PATCH("/current", h.UpdateSelf, basic)
	g.PATCH("/current/password", h.UpdatePasswordSelf, basic)
	g.DELETE("/current", h.DeleteSelf, basic)

	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update, admin)
	g.DELETE("/:id", h.Delete, admin)
	g.POST("/:id/restore", h.Restore, admin)
	g.DELETE("/:id/sessions", h.RevokeSessions, admin)
}

func registerAudit(e *echo.Echo, d Deps) {
	h := handler.NewAuditHandler(d.Audit)
	g := e.Group("/api/audit-logs", middleware.RequireAuth(), middleware.RequirePrivilege(d.UserLoader, model.PrivilegeAdmin))
	g.GET("", h.List)
}
