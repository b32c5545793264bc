// Package apperror defines the typed failures raised by the service layer.
// Each error carries the HTTP status it maps to so that a single boundary
// translator can render it without knowing about individual kinds.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error. Two errors with the same Kind match under
// errors.Is regardless of their message.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindMalformedToken
	KindAuthenticationRequired
	KindInsufficientPrivilege
	KindLastPrivilegedPrincipal
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
	KindStorage
)

// Error is a domain failure with a transport status and an optional
// structured MoreInfo payload.
type Error struct {
	Kind     Kind
	Status   int
	Message  string
	MoreInfo any
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidCredentials = &Error{
		Kind:    KindInvalidCredentials,
		Status:  http.StatusBadRequest,
		Message: "Invalid username and password.",
	}
	ErrMalformedToken = &Error{
		Kind:    KindMalformedToken,
		Status:  http.StatusUnauthorized,
		Message: "Session tokens should take the form of ID.SECRET",
	}
	ErrAuthenticationRequired = &Error{
		Kind:    KindAuthenticationRequired,
		Status:  http.StatusUnauthorized,
		Message: "Authentication required.",
	}
	ErrInsufficientPrivilege = &Error{
		Kind:    KindInsufficientPrivilege,
		Status:  http.StatusForbidden,
		Message: "Insufficient privileges.",
	}
	ErrLastPrivilegedPrincipal = &Error{
		Kind:    KindLastPrivilegedPrincipal,
		Status:  http.StatusBadRequest,
		Message: "Cannot remove the only remaining admin user.",
	}
	ErrNotFound = &Error{
		Kind:    KindNotFound,
		Status:  http.StatusNotFound,
		Message: "The requested record was not found.",
	}
	ErrStorage = &Error{
		Kind:    KindStorage,
		Status:  http.StatusInternalServerError,
		Message: "A database error occurred.",
	}
)

// NotFound builds a NotFound error for resource where field = value.
func NotFound(resource, field string, value any) *Error {
	return &Error{
		Kind:     KindNotFound,
		Status:   http.StatusNotFound,
		Message:  fmt.Sprintf("Cannot find %s with %s = %v", resource, field, value),
		MoreInfo: map[string]any{"field": field, "value": value},
	}
}

// Forbidden is raised when the actor may not manage the target principal.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: message}
}

// BadRequest is raised for well-formed but unacceptable requests.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: message}
}

// Conflict is raised when a write collides with existing data.
func Conflict(message string, moreInfo any) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: message, MoreInfo: moreInfo}
}

// Storage wraps a persistence failure. Already-typed errors pass through
// unchanged so that domain failures raised inside a transaction keep their kind.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{
		Kind:    KindStorage,
		Status:  http.StatusInternalServerError,
		Message: ErrStorage.Message,
		cause:   err,
	}
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
