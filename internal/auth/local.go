package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/clinicops/internal/docstore"
	"golang.org/x/crypto/bcrypt"
)

// CredentialsCollection holds {email, passwordHash} per uid for the local provider.
const CredentialsCollection = "credentials"

// constant-time stand-in for unknown emails
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LocalProvider verifies bcrypt password hashes kept in the document store and
// issues HS256 tokens. Sign-out revokes the token id until it expires.
type LocalProvider struct {
	store   docstore.Store
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked Revocations
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithRevocations replaces the in-process revocation list, typically with
// RedisRevocations so every replica honours a sign-out.
func WithRevocations(r Revocations) LocalOption {
	return func(p *LocalProvider) {
		if r != nil {
			p.revoked = r
		}
	}
}

// NewLocalProvider builds a provider signing with secret.
func NewLocalProvider(store docstore.Store, secret string, ttl time.Duration, opts ...LocalOption) *LocalProvider {
	if store == nil {
		panic("auth: store required")
	}
	if secret == "" {
		panic("auth: jwt secret required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	p := &LocalProvider{store: store, secret: []byte(secret), ttl: ttl, now: time.Now, revoked: NewMemoryRevocations()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register stores credentials for uid.
func (p *LocalProvider) Register(ctx context.Context, uid, email, password string) error {
	if uid == "" || strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("auth: register: uid, email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	err = p.store.Set(ctx, docstore.Join(CredentialsCollection, uid), docstore.Fields{
		"email":        normalizeEmail(email),
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("auth: register: %w", err)
	}
	return nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Token, error) {
	docs, err := p.store.Query(ctx, docstore.Collection(CredentialsCollection).
		Where("email", docstore.OpEqual, normalizeEmail(email)).WithLimit(1))
	if err != nil {
		return Token{}, fmt.Errorf("auth: lookup credentials: %w", err)
	}
	if len(docs) == 0 {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return Token{}, ErrInvalidCredentials
	}
	doc := docs[0]
	if err := bcrypt.CompareHashAndPassword([]byte(doc.Data.String("passwordHash")), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return p.issue(Principal{UID: doc.ID, Email: doc.Data.String("email")})
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (p *LocalProvider) issue(principal Principal) (Token, error) {
	now := p.now()
	expires := now.Add(p.ttl)
	claims := tokenClaims{
		Email: principal.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expires, Principal: principal}, nil
}

func (p *LocalProvider) parse(token string) (tokenClaims, error) {
	claims := tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil || !parsed.Valid {
		return tokenClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// Verify fails closed when the revocation list cannot be read.
func (p *LocalProvider) Verify(ctx context.Context, token string) (Principal, error) {
	claims, err := p.parse(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	revoked, err := p.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UID: claims.Subject, Email: claims.Email}, nil
}

// SignOut revokes token. Tokens that no longer parse are already unusable.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return nil
	}
	return p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
