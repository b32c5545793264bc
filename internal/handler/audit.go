package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/service"
)

// AuditHandler exposes the audit trail to admins.
type AuditHandler struct {
	Audit *service.AuditService
}

func NewAuditHandler(a *service.AuditService) *AuditHandler { return &AuditHandler{Audit: a} }

type auditEntryResp struct {
	ID            string             `json:"id"`
	Action        model.AuditAction  `json:"action"`
	ActorID       string             `json:"actorId"`
	ActorUsername string             `json:"actorUsername"`
	CreatedAt     time.Time          `json:"createdAt"`
	SubjectKind   model.SubjectKind  `json:"subjectKind"`
	Subject       model.AuditSubject `json:"subject"`
}

type auditListResp struct {
	List       []auditEntryResp `json:"list"`
	NextCursor *string          `json:"nextCursor"`
}

// List pages through audit entries. Query params: action, pageSize, cursor.
func (h *AuditHandler) List(c echo.Context) error {
	size, err := pageSizeParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	page, err := h.Audit.List(ctx, model.AuditQuery{
		Action:   model.AuditAction(strings.ToUpper(c.QueryParam("action"))),
		Cursor:   c.QueryParam("cursor"),
		PageSize: size,
	})
	if err != nil {
		return err
	}
	resp := auditListResp{List: make([]auditEntryResp, 0, len(page.List)), NextCursor: page.NextCursor}
	for _, e := range page.List {
		resp.List = append(resp.List, auditEntryResp{
			ID:            e.ID,
			Action:        e.Action,
			ActorID:       e.ActorID,
			ActorUsername: e.ActorUsername,
			CreatedAt:     e.CreatedAt,
			SubjectKind:   e.Subject.Kind(),
			Subject:       e.Subject,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
