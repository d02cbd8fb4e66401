// Package auth identifies the clinic user behind a request and tracks the
// signed-in profile.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthenticationRequired is returned when an operation needs a signed-in user.
	ErrAuthenticationRequired = errors.New("auth: authentication required")
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken is returned for malformed, expired or revoked tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Principal is the authenticated caller.
type Principal struct {
	UID   string
	Email string
}

// Token is an issued bearer token.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Principal Principal
}

// Provider signs users in and verifies bearer tokens.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Token, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UID == "" {
		return Principal{}, false
	}
	return p, true
}

// RequirePrincipal is PrincipalFrom that fails with ErrAuthenticationRequired.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, ErrAuthenticationRequired
	}
	return p, nil
}
