package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/productmanager/internal/auth"
	"github.com/odyssey-erp/productmanager/internal/rbac/rbactest"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
)

type serviceFixture struct {
	store    *rbactest.Store
	sessions *shared.SessionTracker
	tokens   *token.Manager
	svc      *auth.Service
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	store := rbactest.Seeded()
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	hash, err := hasher.Hash("Sup3r-Secret")
	require.NoError(t, err)
	store.AddIdentity("auditor", hash, shared.RoleAuditor)

	sessions := shared.NewSessionTracker(shared.NewMemorySessionStore(), shared.SessionOptions{
		Inactivity: time.Minute,
		Warning:    30 * time.Second,
	})
	tokens, err := token.NewManager(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return serviceFixture{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		svc:      auth.NewService(store, tokens, sessions, hasher, logger),
	}
}

func TestServiceLoginBindsTokenToSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, auth.LoginRequest{LoginName: "auditor", Password: "Sup3r-Secret"})
	require.NoError(t, err)
	assert.Equal(t, shared.RoleAuditor, res.Identity.RoleName)
	assert.ElementsMatch(t, shared.DefaultRoleGrants()[shared.RoleAuditor], res.Permissions)
	assert.Equal(t, 60, res.Session.InactivitySeconds)
	assert.Equal(t, 30, res.Session.WarningSeconds)

	assert.Equal(t, res.SessionID, f.svc.SessionIDFromToken(res.Token))
	_, err = f.sessions.Peek(ctx, res.SessionID)
	require.NoError(t, err)

	ident, err := f.store.FindIdentityByLogin(ctx, "auditor")
	require.NoError(t, err)
	assert.NotNil(t, ident.LastAuthenticatedAt)

	require.NoError(t, f.svc.Logout(ctx, res.SessionID))
	_, err = f.sessions.Peek(ctx, res.SessionID)
	assert.Error(t, err)
}

func TestServiceLoginRejects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, auth.LoginRequest{LoginName: "auditor", Password: "wrong-password"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, auth.LoginRequest{LoginName: "nobody", Password: "Sup3r-Secret"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, auth.LoginRequest{LoginName: "auditor"})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "password")
}

func TestServiceCurrentAfterIdentityRemoved(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ident, err := f.store.FindIdentityByLogin(ctx, "auditor")
	require.NoError(t, err)

	p, err := f.svc.Current(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "auditor", p.LoginName)

	f.store.RemoveIdentity(ident.ID)
	_, err = f.svc.Current(ctx, ident.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.Empty(t, f.svc.SessionIDFromToken("not-a-token"))
}
