package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/middleware"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

// UserHandler bundles dependencies for user endpoints.
type UserHandler struct {
	Users    *service.UserService
	Sessions *service.SessionService
}

func NewUserHandler(u *service.UserService, s *service.SessionService) *UserHandler {
	return &UserHandler{Users: u, Sessions: s}
}

// ----- DTOs -----

type userCreateReq struct {
	Username  string `json:"username" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=1024"`
	Privilege string `json:"privilege" validate:"omitempty,oneof=BASIC ADMIN"`
}

type userUpdateReq struct {
	Username  *string `json:"username" validate:"omitempty,min=1,max=64"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Privilege *string `json:"privilege" validate:"omitempty,oneof=BASIC ADMIN"`
}

type passwordUpdateReq struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=1024"`
}

type userResp struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Privilege model.Privilege `json:"privilege"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty"`
}

type userListResp struct {
	List       []userResp `json:"list"`
	NextCursor *string    `json:"nextCursor"`
}

type revokeResp struct {
	Revoked int64 `json:"revoked"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Privilege: u.Privilege,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		DeletedAt: u.DeletedAt,
	}
}

func (r userUpdateReq) input() service.UpdateUserInput {
	in := service.UpdateUserInput{Username: r.Username, Email: r.Email}
	if r.Privilege != nil {
		p := model.Privilege(*r.Privilege)
		in.Privilege = &p
	}
	return in
}

// actorID returns the authenticated user id; RequireAuth runs first.
func actorID(c echo.Context) (string, error) {
	r, ok := middleware.Resolved(c)
	if !ok {
		return "", apperror.ErrAuthenticationRequired
	}
	return r.UserID, nil
}

// Create registers a new user.
func (h *UserHandler) Create(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req userCreateReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.Create(ctx, actor, service.CreateUserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Privilege: model.Privilege(req.Privilege),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// Get returns one user by id.
func (h *UserHandler) Get(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.FindByID(ctx, actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// List pages through users. Query params: searchTerm, pageSize, cursor.
func (h *UserHandler) List(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	size, err := pageSizeParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	page, err := h.Users.FindMany(ctx, actor, model.UserQuery{
		SearchTerm: c.QueryParam("searchTerm"),
		Cursor:     c.QueryParam("cursor"),
		PageSize:   size,
	})
	if err != nil {
		return err
	}
	resp := userListResp{List: make([]userResp, 0, len(page.List)), NextCursor: page.NextCursor}
	for _, u := range page.List {
		resp.List = append(resp.List, toUserResp(u))
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdateSelf changes the caller's own profile.
func (h *UserHandler) UpdateSelf(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req userUpdateReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UpdateSelf(ctx, actor, req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// UpdatePasswordSelf changes the caller's password.
func (h *UserHandler) UpdatePasswordSelf(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req passwordUpdateReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.ChangePassword(ctx, actor, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSelf soft-deletes the caller.
func (h *UserHandler) DeleteSelf(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Users.SoftDeleteSelf(ctx, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Update changes another user's profile.
func (h *UserHandler) Update(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	var req userUpdateReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UpdateOther(ctx, actor, c.Param("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Delete soft-deletes another user.
func (h *UserHandler) Delete(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Users.SoftDeleteOther(ctx, actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Restore undoes a soft delete.
func (h *UserHandler) Restore(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.Restore(ctx, actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// RevokeSessions logs a user out everywhere.
func (h *UserHandler) RevokeSessions(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	n, err := h.Sessions.RevokeAllForUser(ctx, actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revokeResp{Revoked: n})
}

func pageSizeParam(c echo.Context) (int, error) {
	raw := c.QueryParam("pageSize")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.BadRequest("pageSize must be a positive integer.")
	}
	return n, nil
}
