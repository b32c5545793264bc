package utils // package utils provides the session token, cookie and password codecs

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for session secrets
	"encoding/base64"
	"strings"

	"github.com/HeliumBERT/tracking/internal/apperror"
)

// opaqueAlphabet is 32 symbols without l, o, 0 and 1 so that identifiers can
// be read aloud or typed without confusion. 32 symbols = 5 bits per char.
const opaqueAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// opaqueLength characters of 5 bits each give 120 bits of entropy.
const opaqueLength = 24

// TokenSeparator joins the id and secret halves of a session token. It never
// appears in either half because opaqueAlphabet does not contain it.
const TokenSeparator = "."

// SessionToken is the parsed client-held credential.
type SessionToken struct {
	ID     string
	Secret string
}

// SessionSecurity is everything produced when a session is issued. Secret and
// Token are handed to the client exactly once; only SecretHash is persisted.
type SessionSecurity struct {
	ID         string
	Secret     string
	SecretHash [32]byte
	Token      string
}

// GenerateOpaqueID returns a random 24 character identifier drawn from
// opaqueAlphabet. It is used for both session ids and session secrets.
func GenerateOpaqueID() (string, error) {
	buf := make([]byte, opaqueLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(opaqueLength)
	for _, v := range buf {
		// >> 3 keeps the top 5 bits, an index in [0, 32)
		b.WriteByte(opaqueAlphabet[v>>3])
	}
	return b.String(), nil
}

// HashSecret returns the SHA-256 digest of a session secret.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// EncodeForStorage converts a digest to the text stored in sessions.secret_hash.
func EncodeForStorage(digest []byte) string {
	return base64.StdEncoding.EncodeToString(digest)
}

// DecodeFromStorage reverses EncodeForStorage.
func DecodeFromStorage(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ConstantTimeEqual compares two digests without exiting early on the first
// differing byte. Only a length mismatch returns immediately.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var c byte
	for i := range a {
		c |= a[i] ^ b[i]
	}
	return c == 0
}

// ComposeToken joins id and secret as "id.secret".
func ComposeToken(id, secret string) string {
	return id + TokenSeparator + secret
}

// ParseToken splits a raw "id.secret" token. Anything other than exactly two
// non-empty segments yields apperror.ErrMalformedToken.
func ParseToken(raw string) (SessionToken, error) {
	parts := strings.Split(raw, TokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SessionToken{}, apperror.ErrMalformedToken
	}
	return SessionToken{ID: parts[0], Secret: parts[1]}, nil
}

// CompareSecret hashes secret and compares it with a stored, encoded hash.
// An undecodable stored hash never matches.
func CompareSecret(secret, storedHash string) bool {
	want, err := DecodeFromStorage(storedHash)
	if err != nil {
		return false
	}
	got := HashSecret(secret)
	return ConstantTimeEqual(got[:], want)
}

// NewSessionSecurity generates a fresh id/secret pair and its derived values.
func NewSessionSecurity() (SessionSecurity, error) {
	secret, err := GenerateOpaqueID()
	if err != nil {
		return SessionSecurity{}, err
	}
	id, err := GenerateOpaqueID()
	if err != nil {
		return SessionSecurity{}, err
	}
	return SessionSecurity{
		ID:         id,
		Secret:     secret,
		SecretHash: HashSecret(secret),
		Token:      ComposeToken(id, secret),
	}, nil
}
