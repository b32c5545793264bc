package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("user", "id", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected NotFound to match ErrNotFound")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("NotFound must not match ErrInvalidCredentials")
	}
	wrapped := fmt.Errorf("lookup: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatal("expected wrapped NotFound to match")
	}
}

func TestStorageWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage(cause)
	if !errors.Is(err, ErrStorage) {
		t.Fatal("expected storage kind")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("status = %d", StatusOf(err))
	}
}

func TestStoragePassesDomainErrorsThrough(t *testing.T) {
	err := Storage(ErrLastPrivilegedPrincipal)
	if err != ErrLastPrivilegedPrincipal {
		t.Fatalf("expected domain error unchanged, got %v", err)
	}
	if Storage(nil) != nil {
		t.Fatal("Storage(nil) must be nil")
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		ErrInvalidCredentials:      http.StatusBadRequest,
		ErrAuthenticationRequired:  http.StatusUnauthorized,
		ErrInsufficientPrivilege:   http.StatusForbidden,
		ErrLastPrivilegedPrincipal: http.StatusBadRequest,
		Conflict("dup", nil):       http.StatusConflict,
		errors.New("boom"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusOf(err); got != want {
			t.Fatalf("StatusOf(%v) = %d, want %d", err, got, want)
		}
	}
}
