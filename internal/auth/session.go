package auth

import (
	"context"
	"errors"
	"sync"

	"billtracker/internal/core"
	"billtracker/internal/remote"
)

// Identity resolves the signed-in user. A nil user with a nil error means
// nobody is signed in.
type Identity interface {
	CurrentUser(ctx context.Context) (*core.User, error)
}

// Fixed is an Identity bound to one user for its whole life, as used by the
// per-user sessions of the HTTP API.
type Fixed struct {
	User *core.User
}

func (f Fixed) CurrentUser(context.Context) (*core.User, error) {
	return f.User, nil
}

// UserID returns the signed-in user's ID, or core.ErrNotAuthenticated.
func UserID(ctx context.Context, id Identity) (string, error) {
	u, err := id.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", core.ErrNotAuthenticated
	}
	return u.ID, nil
}

// Session is an issued token together with its user.
type Session struct {
	Token  string
	Claims *Claims
	User   *core.User
}

// SessionManager tracks a single signed-in session for long-running
// processes and reports session changes to listeners.
type SessionManager struct {
	auth  *PasswordAuthenticator
	jwt   *JWTManager
	users remote.UserRepository

	mu        sync.RWMutex
	session   *Session
	nextID    int
	listeners map[int]func(*core.User)
}

func NewSessionManager(authn *PasswordAuthenticator, jwt *JWTManager, users remote.UserRepository) *SessionManager {
	return &SessionManager{auth: authn, jwt: jwt, users: users, listeners: make(map[int]func(*core.User))}
}

// SignIn authenticates and replaces the current session.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, claims, err := m.jwt.Generate(user)
	if err != nil {
		return nil, err
	}
	s := &Session{Token: token, Claims: claims, User: user}
	m.set(s)
	return s, nil
}

// Restore resumes a session from a previously issued token.
func (m *SessionManager) Restore(ctx context.Context, token string) (*Session, error) {
	claims, err := m.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	user, err := m.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	s := &Session{Token: token, Claims: claims, User: user}
	m.set(s)
	return s, nil
}

// Session returns the current session, or nil.
func (m *SessionManager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *SessionManager) CurrentUser(context.Context) (*core.User, error) {
	if s := m.Session(); s != nil {
		return s.User, nil
	}
	return nil, nil
}

// SignOut revokes the current token. Signing out twice is harmless.
func (m *SessionManager) SignOut(context.Context) {
	if s := m.Session(); s != nil {
		m.jwt.Revoke(s.Claims)
	}
	m.set(nil)
}

// OnAuthStateChange registers fn for every sign-in and sign-out.
func (m *SessionManager) OnAuthStateChange(fn func(*core.User)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *SessionManager) set(s *Session) {
	m.mu.Lock()
	prev := m.session
	m.session = s
	fns := make([]func(*core.User), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if prev == nil && s == nil {
		return
	}
	var u *core.User
	if s != nil {
		u = s.User
	}
	for _, fn := range fns {
		fn(u)
	}
}

// context helpers for request-scoped claims

type contextKey string

const claimsKey contextKey = "auth_claims"

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFrom returns the claims stored by the auth middleware, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}
