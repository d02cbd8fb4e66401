package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

// ErrSignInUnsupported is returned by providers whose sign-in happens client side.
var ErrSignInUnsupported = errors.New("auth: password sign-in is handled by the identity platform")

type idTokenClient interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// FirebaseVerifier accepts Firebase ID tokens minted by the web client.
type FirebaseVerifier struct {
	client idTokenClient
}

// NewFirebaseVerifier creates a verifier from the admin app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	if app == nil {
		panic("auth: firebase app required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) SignIn(context.Context, string, string) (Token, error) {
	return Token{}, ErrSignInUnsupported
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	tok, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	email, _ := tok.Claims["email"].(string)
	return Principal{UID: tok.UID, Email: email}, nil
}

// SignOut revokes every refresh token of the token's owner.
func (v *FirebaseVerifier) SignOut(ctx context.Context, token string) error {
	principal, err := v.Verify(ctx, token)
	if err != nil {
		return nil
	}
	if err := v.client.RevokeRefreshTokens(ctx, principal.UID); err != nil {
		return fmt.Errorf("auth: revoke tokens: %w", err)
	}
	return nil
}
