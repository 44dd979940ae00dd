package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access/refresh TTLs fixed by the wire protocol.
const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

// Issuer mints and verifies HS256 tokens under a single shared secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// claims is deliberately minimal: sub is the username, exp the only other
// registered claim in use.
type claims struct {
	jwt.RegisteredClaims
}

// IssueAccess mints a 15-minute access token for username.
func (i *Issuer) IssueAccess(username string) (token string, expiresAt int64, err error) {
	return i.issue(username, AccessTTL)
}

// IssueRefresh mints a 7-day refresh token for username.
func (i *Issuer) IssueRefresh(username string) (token string, expiresAt int64, err error) {
	return i.issue(username, RefreshTTL)
}

func (i *Issuer) issue(username string, ttl time.Duration) (string, int64, error) {
	exp := time.Now().Add(ttl)
	c := claims{jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp.Unix(), nil
}

// Verify parses and validates token, returning the subject (username) on
// success.
func (i *Issuer) Verify(token string) (username string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("auth: invalid token")
	}
	return c.Subject, nil
}
