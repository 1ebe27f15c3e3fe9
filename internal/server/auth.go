package server

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token issuance belongs to the external auth service; this resolver only
// validates bearer tokens and extracts the identity they carry.
type tokenResolver struct {
	secret []byte
}

type authClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func newTokenResolver(secret string) *tokenResolver {
	return &tokenResolver{secret: []byte(secret)}
}

// Resolve validates a bearer token and returns the identity it names.
func (r *tokenResolver) Resolve(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errPermission("authentication required")
	}
	claims := &authClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errPermission("unexpected token signing method")
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, errPermission("invalid or expired token")
	}
	if claims.UserID <= 0 || claims.Username == "" {
		return Identity{}, errPermission("token is missing identity claims")
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// Issue mints a token for an identity. Used by tests and local tooling; a
// deployed instance receives tokens from the auth service instead.
func (r *tokenResolver) Issue(identity Identity, ttl time.Duration) (string, error) {
	claims := authClaims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(r.secret)
}
