package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// ErrRoleNotFound is reported when roles/{uid} is missing. The user stays signed in.
var ErrRoleNotFound = errors.New("auth: role not found")

// RoleAdmin is the roles/{uid}.nivel value that grants access to every agent's data.
const RoleAdmin = "admin"

// RoleOf returns roles/{uid}.nivel, or "" when uid has no role document.
func RoleOf(ctx context.Context, store docstore.Store, uid string) (string, error) {
	doc, err := store.Get(ctx, docstore.Join("roles", uid))
	switch {
	case err == nil:
		return doc.Data.String("nivel"), nil
	case errors.Is(err, docstore.ErrNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("auth: load role: %w", err)
	}
}

// State of a Session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// Profile is the signed-in user merged with their agent record.
type Profile struct {
	UID   string          `json:"uid"`
	Email string          `json:"email"`
	Role  string          `json:"role,omitempty"`
	Name  string          `json:"name,omitempty"`
	Agent docstore.Fields `json:"agent,omitempty"`
}

// Status is what OnAuthStateChange listeners observe.
type Status struct {
	State   State
	Profile *Profile
	Token   string
	Err     error
}

// LoadProfile reads roles/{uid}.nivel and agentes/{uid}. A missing role yields
// ErrRoleNotFound together with a usable profile.
func LoadProfile(ctx context.Context, store docstore.Store, p Principal) (Profile, error) {
	profile := Profile{UID: p.UID, Email: p.Email}
	var roleErr error
	role, err := store.Get(ctx, docstore.Join("roles", p.UID))
	switch {
	case err == nil:
		profile.Role = role.Data.String("nivel")
	case errors.Is(err, docstore.ErrNotFound):
		roleErr = ErrRoleNotFound
	default:
		return Profile{}, fmt.Errorf("auth: load role: %w", err)
	}

	agent, err := store.Get(ctx, docstore.Join("agentes", p.UID))
	switch {
	case err == nil:
		profile.Agent = agent.Data
		profile.Name = agent.Data.String("name")
		if email := agent.Data.String("email"); email != "" && profile.Email == "" {
			profile.Email = email
		}
	case errors.Is(err, docstore.ErrNotFound):
	default:
		return Profile{}, fmt.Errorf("auth: load agent: %w", err)
	}
	return profile, roleErr
}

// Session tracks one user's authentication lifecycle:
// Unauthenticated -> Authenticating -> Authenticated | Error, and back on SignOut.
type Session struct {
	provider Provider
	store    docstore.Store
	logger   *logging.Logger

	mu        sync.Mutex
	status    Status
	listeners map[int]func(Status)
	nextID    int
}

func NewSession(provider Provider, store docstore.Store, logger *logging.Logger) *Session {
	if provider == nil {
		panic("auth: provider required")
	}
	if store == nil {
		panic("auth: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		provider:  provider,
		store:     store,
		logger:    logger,
		status:    Status{State: StateUnauthenticated},
		listeners: make(map[int]func(Status)),
	}
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnAuthStateChange calls fn with the current status and on every transition
// until the returned function is called.
func (s *Session) OnAuthStateChange(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.status
	s.mu.Unlock()

	fn(current)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignIn authenticates with email and password and loads the profile.
func (s *Session) SignIn(ctx context.Context, email, password string) error {
	s.transition(Status{State: StateAuthenticating})
	token, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.transition(Status{State: StateError, Err: err})
		return err
	}
	return s.establish(ctx, token.Value, token.Principal)
}

// Restore re-establishes a session from a previously issued token.
func (s *Session) Restore(ctx context.Context, token string) error {
	s.transition(Status{State: StateAuthenticating})
	principal, err := s.provider.Verify(ctx, token)
	if err != nil {
		s.transition(Status{State: StateUnauthenticated, Err: err})
		return err
	}
	return s.establish(ctx, token, principal)
}

func (s *Session) establish(ctx context.Context, token string, principal Principal) error {
	profile, err := LoadProfile(ctx, s.store, principal)
	if err != nil && !errors.Is(err, ErrRoleNotFound) {
		s.logger.Error("failed to load profile", "uid", principal.UID, "error", err)
		s.transition(Status{State: StateError, Token: token, Err: err})
		return err
	}
	s.transition(Status{State: StateAuthenticated, Profile: &profile, Token: token, Err: err})
	return nil
}

// SignOut revokes the token and returns to Unauthenticated.
func (s *Session) SignOut(ctx context.Context) error {
	token := s.Status().Token
	if token != "" {
		if err := s.provider.SignOut(ctx, token); err != nil {
			s.transition(Status{State: StateError, Token: token, Err: err})
			return err
		}
	}
	s.transition(Status{State: StateUnauthenticated})
	return nil
}

func (s *Session) transition(next Status) {
	s.mu.Lock()
	s.status = next
	listeners := make([]func(Status), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(next)
	}
}
