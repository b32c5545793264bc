package utils

import (
	"strings"
	"testing"
)

func fastParams() Argon2Params {
	return Argon2Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(fastParams())
	if err != nil {
		t.Fatalf("NewPasswordHasher error: %v", err)
	}
	return h
}

func TestHashAndVerifyPassword(t *testing.T) {
	h := newTestHasher(t)
	for _, p := range []string{"correct horse", "", "ünïcödé", strings.Repeat("x", 200)} {
		hash, err := h.HashPassword(p)
		if err != nil {
			t.Fatalf("HashPassword error: %v", err)
		}
		if !strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$") {
			t.Fatalf("unexpected PHC prefix: %s", hash)
		}
		if !h.VerifyPassword(hash, p) {
			t.Fatalf("expected %q to verify", p)
		}
		if h.VerifyPassword(hash, p+"!") {
			t.Fatalf("expected %q+! to fail", p)
		}
	}
}

func TestHashPasswordIsSalted(t *testing.T) {
	h := newTestHasher(t)
	a, _ := h.HashPassword("same")
	b, _ := h.HashPassword("same")
	if a == b {
		t.Fatal("expected different hashes for the same password")
	}
}

func TestVerifyUsesEmbeddedParameters(t *testing.T) {
	old := newTestHasher(t)
	hash, err := old.HashPassword("pw-123456")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	stronger, err := NewPasswordHasher(Argon2Params{Memory: 128, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewPasswordHasher error: %v", err)
	}
	if !stronger.VerifyPassword(hash, "pw-123456") {
		t.Fatal("expected verification with parameters read from the hash")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t)
	for _, bad := range []string{
		"",
		"plain",
		"$2a$10$abcdefghijklmnopqrstuv",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
	} {
		if h.VerifyPassword(bad, "anything") {
			t.Fatalf("expected malformed hash %q to fail", bad)
		}
	}
}

func TestNewPasswordHasherRejectsWeakParams(t *testing.T) {
	if _, err := NewPasswordHasher(Argon2Params{Memory: 64, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected error for time=0")
	}
	if _, err := NewPasswordHasher(Argon2Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 4, KeyLength: 32}); err == nil {
		t.Fatal("expected error for short salt")
	}
}
