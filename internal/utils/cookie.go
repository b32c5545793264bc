package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for signing the session cookie payload
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "sessionId"

// ErrInvalidCookie is returned when a cookie value fails signature or claim checks.
var ErrInvalidCookie = errors.New("invalid session cookie")

// cookieClaims wraps the composed "id.secret" token. The signature only
// proves the value was issued by this server; the session itself is still
// validated against the store on every request.
type cookieClaims struct {
	Token string `json:"tok"`
	jwt.RegisteredClaims
}

// SignSessionCookie returns an HS256-signed value holding token. The exp
// claim mirrors the cookie max-age.
func SignSessionCookie(secret, token string, maxAge time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := cookieClaims{
		Token: token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifySessionCookie checks the signature of a cookie value produced by
// SignSessionCookie and returns the embedded token.
func VerifySessionCookie(secret, value string) (string, error) {
	var claims cookieClaims
	tok, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCookie
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid || claims.Token == "" {
		return "", ErrInvalidCookie
	}
	return claims.Token, nil
}
