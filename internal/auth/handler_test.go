package auth_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/productmanager/internal/auth"
	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/rbac/rbactest"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
	_ "github.com/odyssey-erp/productmanager/testing"
)

type authFixture struct {
	store   *rbactest.Store
	hasher  *auth.Hasher
	tracker *shared.SessionTracker
	router  chi.Router

	mu  sync.Mutex
	now time.Time
}

func (f *authFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *authFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &authFixture{store: rbactest.Seeded(), now: time.Now().UTC()}
	var err error
	f.hasher, err = auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	f.tracker = shared.NewSessionTracker(shared.NewMemorySessionStore(), shared.SessionOptions{
		Inactivity: time.Minute,
		Warning:    30 * time.Second,
		Clock:      f.clock,
	})
	tokens, err := token.NewManager(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef"), Clock: f.clock})
	require.NoError(t, err)
	gate := rbac.NewGate(rbac.GateConfig{
		Tokens:   tokens,
		Sessions: f.tracker,
		Resolver: rbac.NewResolver(f.store),
		Logger:   logger,
	})
	svc := auth.NewService(f.store, tokens, f.tracker, f.hasher, logger)
	h := auth.NewHandler(logger, svc, f.tracker, gate, httpx.ErrorResponder{}, nil)
	r := chi.NewRouter()
	r.Route("/api/auth", h.MountRoutes)
	f.router = r
	return f
}

func (f *authFixture) addUser(t *testing.T, login, password, role string) rbac.Identity {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	return f.store.AddIdentity(login, hash, role)
}

type loginResponse struct {
	Token       string         `json:"token"`
	Identity    map[string]any `json:"identity"`
	Permissions []string       `json:"permissions"`
	Session     struct {
		InactivitySeconds int `json:"inactivitySeconds"`
		WarningSeconds    int `json:"warningSeconds"`
	} `json:"session"`
}

func (f *authFixture) login(t *testing.T, login, password string) (*httptest.ResponseRecorder, loginResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"loginName":"`+login+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var body loginResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sessionId" {
			return c
		}
	}
	return nil
}

func (f *authFixture) me(tok string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	ident := f.addUser(t, "registrador1", "Abcdef1!", shared.RoleRegistrador)

	rec, body := f.login(t, "registrador1", "Abcdef1!")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, []string{"create_products", "edit_products", "view_products"}, body.Permissions)
	assert.Equal(t, shared.RoleRegistrador, body.Identity["roleName"])
	assert.Equal(t, 60, body.Session.InactivitySeconds)
	assert.Equal(t, 30, body.Session.WarningSeconds)
	require.NotNil(t, sessionCookie(rec))
	assert.True(t, sessionCookie(rec).HttpOnly)

	stored, err := f.store.FindIdentityByID(t.Context(), ident.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastAuthenticatedAt)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "auditor1", "Abcdef1!", shared.RoleAuditor)

	rec, _ := f.login(t, "auditor1", "wrongpass")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	rec, _ = f.login(t, "nobody", "Abcdef1!")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.login(t, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresSession(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "auditor1", "Abcdef1!", shared.RoleAuditor)
	rec, body := f.login(t, "auditor1", "Abcdef1!")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)

	me := f.me(body.Token, cookie)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	assert.Contains(t, me.Body.String(), `"loginName":"auditor1"`)

	assert.Equal(t, http.StatusUnauthorized, f.me("", nil).Code)
}

func TestMeAfterInactivityReportsSessionExpired(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "auditor1", "Abcdef1!", shared.RoleAuditor)
	rec, body := f.login(t, "auditor1", "Abcdef1!")
	require.Equal(t, http.StatusOK, rec.Code)

	f.advance(2 * time.Minute)
	me := f.me(body.Token, sessionCookie(rec))
	assert.Equal(t, http.StatusUnauthorized, me.Code)
	assert.Contains(t, me.Body.String(), "session_expired")
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "auditor1", "Abcdef1!", shared.RoleAuditor)
	rec, body := f.login(t, "auditor1", "Abcdef1!")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)
	cleared := sessionCookie(out)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	assert.Equal(t, http.StatusUnauthorized, f.me(body.Token, cookie).Code)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "auditor1", "Abcdef1!", shared.RoleAuditor)
	first, firstBody := f.login(t, "auditor1", "Abcdef1!")
	second, secondBody := f.login(t, "auditor1", "Abcdef1!")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+firstBody.Token)
	f.router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, http.StatusUnauthorized, f.me(firstBody.Token, sessionCookie(first)).Code)
	assert.Equal(t, http.StatusOK, f.me(secondBody.Token, sessionCookie(second)).Code)
}

func TestHasher(t *testing.T) {
	h, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	hash, err := h.Hash("Abcdef1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Abcdef1!", hash)

	ok, err := h.Compare(hash, "Abcdef1!")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.Compare(hash, "abcdef1!")
	require.NoError(t, err)
	assert.False(t, ok)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
