// Package tokenstore holds the session credentials the connection manager
// and request layer read. Implementations live in subpackages; consumers
// depend only on the Store interface.
package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("tokenstore: key not found")

// Store is the persistent key/value credential store. Get returns
// ErrNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Expired reports whether a JWT access token is past its expiry claim.
// The signature is not verified; the server remains the authority. A token
// that cannot be parsed or carries no expiry is treated as expired so the
// caller fails closed.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !now.Before(exp.Time)
}
