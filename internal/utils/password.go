package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Algorithm = "argon2id"

// Argon2Params are the cost parameters embedded in every hash so that
// verification never needs them from configuration.
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params matches the argon2id defaults used by common libraries
// (19 MiB, t=2, p=1).
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// PasswordHasher hashes and verifies passwords with Argon2id.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher validates params and returns a hasher.
func NewPasswordHasher(p Argon2Params) (*PasswordHasher, error) {
	if p.Memory < 8 || p.Time < 1 || p.Parallelism < 1 {
		return nil, errors.New("argon2: invalid cost parameters")
	}
	if p.SaltLength < 8 || p.KeyLength < 16 {
		return nil, errors.New("argon2: salt or key too short")
	}
	return &PasswordHasher{params: p}, nil
}

// HashPassword returns a PHC string: $argon2id$v=19$m=..,t=..,p=..$salt$hash
func (h *PasswordHasher) HashPassword(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Algorithm,
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword recomputes the hash with the parameters stored in hash.
// A mismatch or an unparsable hash returns false.
func (h *PasswordHasher) VerifyPassword(hash, plain string) bool {
	p, salt, key, err := decodeArgon2(hash)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1
}

func decodeArgon2(hash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2Algorithm {
		return p, nil, nil, errors.New("argon2: invalid hash format")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, errors.New("argon2: unsupported version")
	}
	var mem, t uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &t, &par); err != nil {
		return p, nil, nil, fmt.Errorf("argon2: invalid parameters: %w", err)
	}
	if mem == 0 || t == 0 || par == 0 {
		return p, nil, nil, errors.New("argon2: invalid parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.New("argon2: invalid salt encoding")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errors.New("argon2: invalid key encoding")
	}
	p.Memory, p.Time, p.Parallelism = mem, t, par
	p.SaltLength, p.KeyLength = uint32(len(salt)), uint32(len(key))
	return p, salt, key, nil
}
