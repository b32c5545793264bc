package model

import "time"

// User represents an application user record as stored in the
// `users` table. The json tags are omitted here because these structs
// are primarily used internally by the repository layer; handlers
// define separate response types.
//
// Fields:
//
//	ID           – UUID primary key.
//	Username     – unique login name.
//	Email        – contact address.
//	PasswordHash – argon2id PHC string.
//	Privilege    – BASIC or ADMIN.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
//	DeletedAt    – soft-delete marker, nil while active.
type User struct {
	ID           string     // users.id
	Username     string     // users.username
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Privilege    Privilege  // users.privilege
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
	DeletedAt    *time.Time // users.deleted_at (nullable)
}

// Active reports whether the user has not been soft-deleted.
func (u User) Active() bool { return u.DeletedAt == nil }

// Identity returns the public identity fields of the user.
func (u User) Identity() UserIdentity {
	return UserIdentity{ID: u.ID, Username: u.Username, Email: u.Email, Privilege: u.Privilege}
}

// UserIdentity is the subset of a user that is safe to return to clients.
type UserIdentity struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Privilege Privilege `json:"privilege"`
}

// UserUpdate lists the columns a caller wants to change; nil means unchanged.
type UserUpdate struct {
	Username     *string
	Email        *string
	Privilege    *Privilege
	PasswordHash *string
}

// UserQuery filters and pages user listings. Cursor is the id of the last
// row of the previous page.
type UserQuery struct {
	SearchTerm     string
	IncludeDeleted bool
	Cursor         string
	PageSize       int
}

// Actor identifies who performed an action. Username is a snapshot and may
// be left empty for the audit recorder to fill in.
type Actor struct {
	ID       string
	Username string
}

// ActorOf returns u as an Actor.
func ActorOf(u User) Actor { return Actor{ID: u.ID, Username: u.Username} }

// UserDeleteResult is returned by soft-delete operations.
type UserDeleteResult struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	DeletedAt time.Time `json:"deletedAt"`
}
