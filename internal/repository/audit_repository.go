package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/HeliumBERT/tracking/internal/model"
)

// AuditRepo appends to and reads the 'audit_logs' table. The subject
// snapshot is stored as JSON next to its kind tag.
type AuditRepo struct{ DB DBTX }

func (r *AuditRepo) Append(ctx context.Context, e *model.AuditLogEntry) error {
	snap, err := model.EncodeSubjectSnapshot(e.Subject)
	if err != nil {
		return fmt.Errorf("audit: encode subject: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, actor_id, actor_username, subject_kind, subject_id, subject_snapshot, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, string(e.Action), e.ActorID, e.ActorUsername,
		string(e.Subject.Kind()), e.Subject.SubjectID(), string(snap), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *AuditRepo) List(ctx context.Context, q model.AuditQuery) ([]model.AuditLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(q.Action))
	}
	if q.Cursor != "" {
		where = append(where, "seq < (SELECT c.seq FROM audit_logs c WHERE c.id = ?)")
		args = append(args, q.Cursor)
	}
	query := "SELECT id, action, actor_id, actor_username, subject_kind, subject_snapshot, created_at FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, pageSize(q.PageSize))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var (
			e      model.AuditLogEntry
			action string
			kind   string
			snap   []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &e.ActorUsername, &kind, &snap, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Action = model.AuditAction(action)
		if e.Subject, err = model.DecodeSubjectSnapshot(model.SubjectKind(kind), snap); err != nil {
			return nil, fmt.Errorf("audit: decode subject %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}
