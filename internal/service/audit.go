package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HeliumBERT/tracking/internal/apperror"
	"github.com/HeliumBERT/tracking/internal/model"
	"github.com/HeliumBERT/tracking/internal/queue"
)

// AuditPublisher forwards committed audit entries to downstream consumers.
type AuditPublisher interface {
	PublishAuditRecorded(ctx context.Context, ev queue.AuditRecordedEvent) error
}

// AuditRecorder appends audit entries. Record must be called with the store
// of the transaction that performs the audited mutation so that both commit
// or roll back together.
type AuditRecorder struct {
	now       func() time.Time
	publisher AuditPublisher
	log       *zap.Logger
}

// NewAuditRecorder returns a recorder. publisher may be nil.
func NewAuditRecorder(now func() time.Time, publisher AuditPublisher, log *zap.Logger) *AuditRecorder {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditRecorder{now: now, publisher: publisher, log: log}
}

// Record snapshots subject now and appends the entry through tx. Errors are
// returned as-is so that the surrounding transaction rolls back.
func (r *AuditRecorder) Record(ctx context.Context, tx Store, action model.AuditAction, actor model.Actor, subject model.AuditSubject) (model.AuditLogEntry, error) {
	if actor.Username == "" {
		u, err := tx.Users().FindByID(ctx, actor.ID)
		if err != nil {
			return model.AuditLogEntry{}, err
		}
		if u == nil {
			return model.AuditLogEntry{}, apperror.NotFound("user", "id", actor.ID)
		}
		actor.Username = u.Username
	}
	e := model.AuditLogEntry{
		ID:            uuid.NewString(),
		Action:        action,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		CreatedAt:     r.now().UTC(),
		Subject:       subject,
	}
	if err := tx.Audit().Append(ctx, &e); err != nil {
		return model.AuditLogEntry{}, err
	}
	return e, nil
}

// Publish forwards committed entries. The database row is the audit of
// record, so a failed publish is logged and not returned.
func (r *AuditRecorder) Publish(ctx context.Context, entries ...model.AuditLogEntry) {
	if r.publisher == nil {
		return
	}
	for _, e := range entries {
		ev, err := queue.NewAuditRecordedEvent(e)
		if err == nil {
			err = r.publisher.PublishAuditRecorded(ctx, ev)
		}
		if err != nil {
			r.log.Warn("audit publish failed",
				zap.String("audit_id", e.ID),
				zap.String("action", string(e.Action)),
				zap.Error(err))
		}
	}
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	List       []model.AuditLogEntry
	NextCursor *string
}

// AuditService reads the audit trail.
type AuditService struct {
	store Store
}

func NewAuditService(store Store) *AuditService { return &AuditService{store: store} }

// List returns a page of entries matching q.
func (s *AuditService) List(ctx context.Context, q model.AuditQuery) (AuditPage, error) {
	switch {
	case q.PageSize <= 0:
		q.PageSize = defaultPageSize
	case q.PageSize > maxPageSize:
		q.PageSize = maxPageSize
	}
	if q.Action != "" && !q.Action.Valid() {
		return AuditPage{}, apperror.BadRequest("Unknown audit action.")
	}
	list, err := s.store.Audit().List(ctx, q)
	if err != nil {
		return AuditPage{}, apperror.Storage(err)
	}
	page := AuditPage{List: list}
	if len(list) >= q.PageSize {
		next := list[len(list)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}
