// Package auth verifies bearer tokens issued by the hosted identity provider.
package auth

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

const RoleAdmin = "ADMIN"

// User is an authenticated caller.
type User struct {
	ID    string
	Email string
}

// Verifier turns an access token into a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// BearerToken extracts the token from an Authorization header value.
func BearerToken(r *http.Request) (string, error) {
	m := bearerPattern.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return "", ErrMissingToken
	}
	return m[1], nil
}

type contextKey struct{}

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the caller, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(contextKey{}).(*User)
	return u
}

// Options selects the verification strategy.
type Options struct {
	SupabaseURL string
	AnonKey     string
	JWTSecret   string
	Timeout     time.Duration
}

// NewVerifier verifies locally when a JWT secret is configured and asks the
// provider otherwise.
func NewVerifier(opts Options) Verifier {
	if opts.JWTSecret != "" {
		return NewJWTVerifier(opts.JWTSecret)
	}
	return NewSupabaseVerifier(opts.SupabaseURL, opts.AnonKey, opts.Timeout)
}
