package model

import "time"

// Session models a row in the `sessions` table. Only the digest of the
// session secret is stored; the raw secret exists on the client alone.
type Session struct {
	ID             string    // sessions.id, public half of the token
	SecretHash     string    // sessions.secret_hash, base64 SHA-256
	UserID         string    // sessions.user_id
	CreatedAt      time.Time // sessions.created_at
	LastVerifiedAt time.Time // sessions.last_verified_at
}

// SessionWithUser is a session joined with its owning user.
type SessionWithUser struct {
	Session
	User User
}

// NewSession is the insert payload for a session.
type NewSession struct {
	ID         string
	SecretHash string
	UserID     string
	CreatedAt  time.Time
}

// ResolvedSession is the authenticated identity attached to a request after
// its token validated. Privilege is a snapshot taken at resolution time and
// must not be trusted for authorization decisions; the privilege gate reloads
// the user.
type ResolvedSession struct {
	Session   Session
	UserID    string
	Username  string
	Privilege Privilege
}

// SessionDeleteResult is returned when a session is logged out.
type SessionDeleteResult struct {
	User SessionUser `json:"user"`
}

// SessionUser identifies the owner of a deleted session.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
