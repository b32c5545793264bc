// Package queue defines message payloads exchanged over the message broker
// and the consumer that archives them.
package queue

import (
	"encoding/json"
	"time"

	"github.com/HeliumBERT/tracking/internal/model"
)

// AuditQueueName is the durable queue audit events are published to.
const AuditQueueName = "audit.recorded"

// AuditRecordedEvent is published after an audited mutation commits. It
// carries the subject snapshot so consumers never need to query the primary
// database.
type AuditRecordedEvent struct {
	ID            string          `json:"id"`
	Action        string          `json:"action"`
	ActorID       string          `json:"actor_id"`
	ActorUsername string          `json:"actor_username"`
	SubjectKind   string          `json:"subject_kind"`
	SubjectID     string          `json:"subject_id"`
	Subject       json.RawMessage `json:"subject"`
	RecordedAt    string          `json:"recorded_at"`
}

// NewAuditRecordedEvent converts a stored entry into its wire form.
func NewAuditRecordedEvent(e model.AuditLogEntry) (AuditRecordedEvent, error) {
	snap, err := model.EncodeSubjectSnapshot(e.Subject)
	if err != nil {
		return AuditRecordedEvent{}, err
	}
	return AuditRecordedEvent{
		ID:            e.ID,
		Action:        string(e.Action),
		ActorID:       e.ActorID,
		ActorUsername: e.ActorUsername,
		SubjectKind:   string(e.Subject.Kind()),
		SubjectID:     e.Subject.SubjectID(),
		Subject:       snap,
		RecordedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}
