package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record of a login.
type Session struct {
	ID             string    `json:"id"`
	IdentityID     int64     `json:"identity_id"`
	RoleID         int64     `json:"role_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Idle reports how long the session has been inactive at now.
func (s Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// SessionStore is a keyed store of session records. Get returns ErrNotFound for
// unknown ids. Refresh overwrites a record only while it still exists and reports
// whether it did, so a concurrent Delete is never undone.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, sess Session) error
	Refresh(ctx context.Context, sess Session) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByIdentity(ctx context.Context, identityID int64) (int, error)
}

// Clock supplies the current time.
type Clock func() time.Time

// SessionOptions configures a SessionTracker.
type SessionOptions struct {
	CookieName string
	Inactivity time.Duration
	Warning    time.Duration
	Secure     bool
	Clock      Clock
	// OnExpire is invoked after an expired session is destroyed.
	OnExpire func(Session)
}

// SessionTracker applies sliding inactivity expiration to stored sessions.
type SessionTracker struct {
	store      SessionStore
	cookieName string
	inactivity time.Duration
	warning    time.Duration
	secure     bool
	now        Clock
	onExpire   func(Session)
}

// NewSessionTracker constructs a SessionTracker.
func NewSessionTracker(store SessionStore, opts SessionOptions) *SessionTracker {
	if opts.CookieName == "" {
		opts.CookieName = "sessionId"
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = time.Minute
	}
	if opts.Warning <= 0 || opts.Warning > opts.Inactivity {
		opts.Warning = opts.Inactivity / 2
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &SessionTracker{
		store:      store,
		cookieName: opts.CookieName,
		inactivity: opts.Inactivity,
		warning:    opts.Warning,
		secure:     opts.Secure,
		now:        opts.Clock,
		onExpire:   opts.OnExpire,
	}
}

// Start creates an Active session for the identity.
func (t *SessionTracker) Start(ctx context.Context, identityID, roleID int64) (Session, error) {
	now := t.now()
	sess := Session{
		ID:             uuid.NewString(),
		IdentityID:     identityID,
		RoleID:         roleID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(t.inactivity),
	}
	if err := t.store.Put(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("session: start: %w", err)
	}
	return sess, nil
}

// Touch records activity on an Active session. A session idle for longer than the
// inactivity window is destroyed and ErrSessionExpired returned. An unknown id, or
// one destroyed while the touch was in flight, yields ErrUnauthenticated.
func (t *SessionTracker) Touch(ctx context.Context, id string) (Session, error) {
	sess, err := t.Peek(ctx, id)
	if err != nil {
		return Session{}, err
	}
	now := t.now()
	if sess.Idle(now) > t.inactivity {
		if err := t.store.Delete(ctx, id); err != nil {
			return Session{}, fmt.Errorf("session: destroy expired: %w", err)
		}
		if t.onExpire != nil {
			t.onExpire(sess)
		}
		return Session{}, ErrSessionExpired
	}
	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}
	sess.ExpiresAt = sess.LastActivityAt.Add(t.inactivity)
	ok, err := t.store.Refresh(ctx, sess)
	if err != nil {
		return Session{}, fmt.Errorf("session: touch: %w", err)
	}
	if !ok {
		return Session{}, ErrUnauthenticated
	}
	return sess, nil
}

// Peek loads a session without recording activity.
func (t *SessionTracker) Peek(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrUnauthenticated
	}
	sess, err := t.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	return sess, nil
}

// Destroy removes a session. Unknown ids are ignored.
func (t *SessionTracker) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return t.store.Delete(ctx, id)
}

// DestroyIdentity removes every session of the identity and reports how many were removed.
func (t *SessionTracker) DestroyIdentity(ctx context.Context, identityID int64) (int, error) {
	return t.store.DeleteByIdentity(ctx, identityID)
}

// Inactivity exposes the configured inactivity window.
func (t *SessionTracker) Inactivity() time.Duration {
	return t.inactivity
}

// Warning exposes how long before expiry clients should warn the user.
func (t *SessionTracker) Warning() time.Duration {
	return t.warning
}

// CookieName returns the cookie identifier used for sessions.
func (t *SessionTracker) CookieName() string {
	return t.cookieName
}

// IDFromRequest reads the session id cookie.
func (t *SessionTracker) IDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(t.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetCookie writes the session cookie.
func (t *SessionTracker) SetCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.ExpiresAt,
	})
}

// ClearCookie expires the session cookie on the client.
func (t *SessionTracker) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
