package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

// HashKey hashes an operator/API key for storage in config.
func HashKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckKey compares a presented key against its bcrypt hash.
func CheckKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

type claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// SignJWT issues a bearer token for a tenant. Token issuance itself lives in
// the excluded auth service; this is kept for tests and local tooling.
func SignJWT(tenantID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return t.SignedString([]byte(secret))
}

// ParseJWT validates a bearer token and returns the tenant id.
func ParseJWT(tokenString, secret string) (string, error) {
	var c claims
	t, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !t.Valid {
		return "", ErrInvalidToken
	}
	if c.TenantID == "" {
		return "", ErrInvalidToken
	}
	return c.TenantID, nil
}
