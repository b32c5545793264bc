package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction is what an actor did to a subject.
type AuditAction string

const (
	ActionCreate     AuditAction = "CREATE"
	ActionRead       AuditAction = "READ"
	ActionUpdate     AuditAction = "UPDATE"
	ActionDelete     AuditAction = "DELETE"
	ActionSoftDelete AuditAction = "SOFT_DELETE"
	ActionRestore    AuditAction = "RESTORE"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionSoftDelete, ActionRestore:
		return true
	}
	return false
}

// SubjectKind tags the variant stored in an audit entry.
type SubjectKind string

const (
	SubjectSession      SubjectKind = "SESSION"
	SubjectUser         SubjectKind = "USER"
	SubjectDocument     SubjectKind = "DOCUMENT"
	SubjectDocumentFile SubjectKind = "DOCUMENT_FILE"
)

// AuditSubject is a closed sum type over the things an audit entry can be
// about. Each variant holds a snapshot of the subject's identifying fields
// taken when the action happened.
type AuditSubject interface {
	Kind() SubjectKind
	// SubjectID is the id of the live row the snapshot was taken from.
	SubjectID() string
	sealed()
}

// SessionSubject records the owner of a session.
type SessionSubject struct {
	UserID   string `json:"userIdSnapshot"`
	Username string `json:"userNameSnapshot"`
}

// UserSubject records a user.
type UserSubject struct {
	UserID   string `json:"userIdSnapshot"`
	Username string `json:"userNameSnapshot"`
}

// DocumentSubject records a document.
type DocumentSubject struct {
	DocumentID string `json:"documentIdSnapshot"`
	Title      string `json:"documentTitleSnapshot"`
}

// DocumentFileSubject records a file together with its parent document.
type DocumentFileSubject struct {
	DocumentID    string `json:"documentIdSnapshot"`
	DocumentTitle string `json:"documentTitleSnapshot"`
	FileID        string `json:"documentFileIdSnapshot"`
	FileTitle     string `json:"documentFileTitleSnapshot"`
}

func (SessionSubject) Kind() SubjectKind      { return SubjectSession }
func (UserSubject) Kind() SubjectKind         { return SubjectUser }
func (DocumentSubject) Kind() SubjectKind     { return SubjectDocument }
func (DocumentFileSubject) Kind() SubjectKind { return SubjectDocumentFile }

func (s SessionSubject) SubjectID() string      { return s.UserID }
func (s UserSubject) SubjectID() string         { return s.UserID }
func (s DocumentSubject) SubjectID() string     { return s.DocumentID }
func (s DocumentFileSubject) SubjectID() string { return s.FileID }

func (SessionSubject) sealed()      {}
func (UserSubject) sealed()         {}
func (DocumentSubject) sealed()     {}
func (DocumentFileSubject) sealed() {}

// SessionSubjectOf snapshots the owner of s.
func SessionSubjectOf(s SessionWithUser) SessionSubject {
	return SessionSubject{UserID: s.User.ID, Username: s.User.Username}
}

// UserSubjectOf snapshots u.
func UserSubjectOf(u User) UserSubject {
	return UserSubject{UserID: u.ID, Username: u.Username}
}

// AuditLogEntry is an immutable record of one action.
type AuditLogEntry struct {
	ID            string
	Action        AuditAction
	ActorID       string
	ActorUsername string // snapshot
	CreatedAt     time.Time
	Subject       AuditSubject
}

// AuditQuery pages audit entries, newest first.
type AuditQuery struct {
	Action   AuditAction // empty for all
	Cursor   string
	PageSize int
}

// EncodeSubjectSnapshot serializes the variant payload for storage.
func EncodeSubjectSnapshot(s AuditSubject) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("audit: nil subject")
	}
	return json.Marshal(s)
}

// DecodeSubjectSnapshot rebuilds the variant identified by kind.
func DecodeSubjectSnapshot(kind SubjectKind, data []byte) (AuditSubject, error) {
	switch kind {
	case SubjectSession:
		var s SessionSubject
		err := json.Unmarshal(data, &s)
		return s, err
	case SubjectUser:
		var s UserSubject
		err := json.Unmarshal(data, &s)
		return s, err
	case SubjectDocument:
		var s DocumentSubject
		err := json.Unmarshal(data, &s)
		return s, err
	case SubjectDocumentFile:
		var s DocumentFileSubject
		err := json.Unmarshal(data, &s)
		return s, err
	}
	return nil, fmt.Errorf("audit: unknown subject kind %q", kind)
}
