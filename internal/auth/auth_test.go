package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"billtracker/internal/core"
	"billtracker/internal/remote/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthenticator() (*PasswordAuthenticator, *memory.Store) {
	store := memory.New()
	return NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost), store
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a, _ := newAuthenticator()

	u, err := a.Register(ctx, "  Ann@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	_, err = a.Register(ctx, "ann@example.com", "another pass")
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := a.Authenticate(ctx, "ANN@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = a.Authenticate(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Authenticate(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	a, _ := newAuthenticator()
	_, err := a.Register(context.Background(), "not-an-email", "long enough")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = a.Register(context.Background(), "a@b.co", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestJWTGenerateValidateRevoke(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	user := &core.User{ID: "u-1", Email: "a@b.co"}

	token, claims, err := m.Generate(user)
	require.NoError(t, err)

	got, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, claims.ID, got.ID)

	m.Revoke(got)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	m := NewJWTManager(testSecret, time.Minute)
	token, _, err := m.Generate(&core.User{ID: "u-1"})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTManager("ffffffffffffffffffffffffffffffff", time.Hour)
	foreign, _, err := other.Generate(&core.User{ID: "u-1"})
	require.NoError(t, err)
	_, err = NewJWTManager(testSecret, time.Hour).Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	a, store := newAuthenticator()
	_, err := a.Register(ctx, "ann@example.com", "correct horse")
	require.NoError(t, err)

	jwtm := NewJWTManager(testSecret, time.Hour)
	m := NewSessionManager(a, jwtm, store)

	var events []*core.User
	unsubscribe := m.OnAuthStateChange(func(u *core.User) { events = append(events, u) })
	defer unsubscribe()

	u, err := m.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	s, err := m.SignIn(ctx, "ann@example.com", "correct horse")
	require.NoError(t, err)
	u, _ = m.CurrentUser(ctx)
	require.NotNil(t, u)
	assert.Equal(t, "ann@example.com", u.Email)

	m.SignOut(ctx)
	m.SignOut(ctx)
	u, _ = m.CurrentUser(ctx)
	assert.Nil(t, u)

	require.Len(t, events, 2)
	assert.NotNil(t, events[0])
	assert.Nil(t, events[1])

	_, err = m.Restore(ctx, s.Token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "signed-out token must not restore")
}

func TestUserIDRequiresSignedInUser(t *testing.T) {
	_, err := UserID(context.Background(), Fixed{})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	id, err := UserID(context.Background(), Fixed{User: &core.User{ID: "u"}})
	require.NoError(t, err)
	assert.Equal(t, "u", id)
}
