package rbactest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
)

// Harness bundles a seeded store with a working gate for handler tests in other
// packages.
type Harness struct {
	Store    *Store
	Sessions *shared.SessionTracker
	Tokens   *token.Manager
	Gate     *rbac.Gate
}

// Credential is what a logged-in client sends back.
type Credential struct {
	Token     string
	SessionID string
}

// NewHarness builds a harness with a memory session store and live role resolution.
func NewHarness(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{Store: Seeded()}
	h.Sessions = shared.NewSessionTracker(shared.NewMemorySessionStore(), shared.SessionOptions{Inactivity: 15 * time.Minute})
	tokens, err := token.NewManager(token.Config{Secret: []byte("rbactest-harness-secret-0123456789")})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	h.Tokens = tokens
	h.Gate = rbac.NewGate(rbac.GateConfig{
		Tokens:   tokens,
		Sessions: h.Sessions,
		Resolver: rbac.NewResolver(h.Store),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Errors:   httpx.ErrorResponder{},
	})
	return h
}

// Login creates an identity with the given role and returns a valid credential.
func (h *Harness) Login(t testing.TB, login, roleName string) (rbac.Identity, Credential) {
	t.Helper()
	ident := h.Store.AddIdentity(login, "hash", roleName)
	role := h.Store.RoleByName(roleName)
	sess, err := h.Sessions.Start(context.Background(), ident.ID, role.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	raw, _, err := h.Tokens.Issue(token.Subject{
		IdentityID: ident.ID,
		LoginName:  ident.LoginName,
		RoleID:     role.ID,
		RoleName:   role.Name,
		SessionID:  sess.ID,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return ident, Credential{Token: raw, SessionID: sess.ID}
}

// Authorize attaches the credential to req.
func (c Credential) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: c.SessionID})
}
