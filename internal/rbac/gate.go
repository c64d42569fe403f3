package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
)

// RoleSource selects where RequireRole reads the caller's role name.
type RoleSource string

const (
	// RoleSourceToken trusts the role name embedded in the bearer token.
	RoleSourceToken RoleSource = "token"
	// RoleSourceLive re-resolves the role name from the store.
	RoleSourceLive RoleSource = "live"
)

// SessionExpiresHeader carries the sliding session expiry back to clients.
const SessionExpiresHeader = "X-Session-Expires-At"

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (token.Claims, error)
}

// PrincipalResolver resolves live principals.
type PrincipalResolver interface {
	Resolve(ctx context.Context, identityID int64) (Principal, error)
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	RecordGuardDecision(guard, outcome string)
}

// RequestContext is the state guards inspect and populate for one request.
type RequestContext struct {
	Request *http.Request
	Claims  *token.Claims
	Session *shared.Session

	resolver  PrincipalResolver
	principal *Principal
}

// Principal resolves the caller's live role and permissions once per request.
func (rc *RequestContext) Principal(ctx context.Context) (Principal, error) {
	if rc.principal != nil {
		return *rc.principal, nil
	}
	if rc.Claims == nil {
		return Principal{}, shared.ErrUnauthenticated
	}
	p, err := rc.resolver.Resolve(ctx, rc.Claims.IdentityID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Principal{}, shared.ErrUnauthenticated
		}
		return Principal{}, err
	}
	rc.principal = &p
	return p, nil
}

// Outcome is a guard verdict.
type Outcome struct {
	Allowed bool
	Err     error
}

// Allow lets the request continue.
func Allow() Outcome { return Outcome{Allowed: true} }

// Deny stops the chain with err.
func Deny(err error) Outcome { return Outcome{Err: err} }

// Guard is a single access rule.
type Guard interface {
	Name() string
	Check(ctx context.Context, rc *RequestContext) Outcome
}

type guardFunc struct {
	name string
	fn   func(ctx context.Context, rc *RequestContext) Outcome
}

func (g guardFunc) Name() string { return g.name }

func (g guardFunc) Check(ctx context.Context, rc *RequestContext) Outcome { return g.fn(ctx, rc) }

// NewGuard wraps fn as a named Guard.
func NewGuard(name string, fn func(ctx context.Context, rc *RequestContext) Outcome) Guard {
	return guardFunc{name: name, fn: fn}
}

// GateConfig wires a Gate.
type GateConfig struct {
	Tokens     TokenVerifier
	Sessions   *shared.SessionTracker
	Resolver   PrincipalResolver
	RoleSource RoleSource
	Logger     *slog.Logger
	Errors     httpx.ErrorResponder
	Metrics    DecisionRecorder
}

// Gate builds guard chains for routes.
type Gate struct {
	tokens     TokenVerifier
	sessions   *shared.SessionTracker
	resolver   PrincipalResolver
	roleSource RoleSource
	logger     *slog.Logger
	errors     httpx.ErrorResponder
	metrics    DecisionRecorder
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RoleSource == "" {
		cfg.RoleSource = RoleSourceToken
	}
	return &Gate{
		tokens:     cfg.Tokens,
		sessions:   cfg.Sessions,
		resolver:   cfg.Resolver,
		roleSource: cfg.RoleSource,
		logger:     cfg.Logger,
		errors:     cfg.Errors,
		metrics:    cfg.Metrics,
	}
}

// RequireAuthenticated verifies the bearer token and refreshes the session it is bound to.
func (g *Gate) RequireAuthenticated() Guard {
	return NewGuard("authenticated", func(ctx context.Context, rc *RequestContext) Outcome {
		claims, err := g.tokens.Verify(token.FromRequest(rc.Request))
		if err != nil {
			return Deny(err)
		}
		sessionID := g.sessions.IDFromRequest(rc.Request)
		switch {
		case sessionID == "":
			sessionID = claims.SessionID
		case claims.SessionID != "" && claims.SessionID != sessionID:
			return Deny(fmt.Errorf("%w: session does not match token", shared.ErrUnauthenticated))
		}
		sess, err := g.sessions.Peek(ctx, sessionID)
		if err != nil {
			return Deny(err)
		}
		if sess.IdentityID != claims.IdentityID {
			return Deny(fmt.Errorf("%w: session belongs to another identity", shared.ErrUnauthenticated))
		}
		sess, err = g.sessions.Touch(ctx, sessionID)
		if err != nil {
			return Deny(err)
		}
		rc.Claims = &claims
		rc.Session = &sess
		return Allow()
	})
}

// RequirePermission allows callers whose live permission set contains name.
func (g *Gate) RequirePermission(name string) Guard {
	required := normalizePermission(name)
	return NewGuard("permission:"+required, func(ctx context.Context, rc *RequestContext) Outcome {
		p, err := rc.Principal(ctx)
		if err != nil {
			return Deny(err)
		}
		if !p.Permissions.Has(required) {
			return Deny(&shared.ForbiddenError{RequiredPermission: required, CurrentRole: p.RoleName})
		}
		return Allow()
	})
}

// RequireRole allows callers whose role name equals name exactly. The role name comes
// from the token or the store depending on the configured RoleSource.
func (g *Gate) RequireRole(name string) Guard {
	return NewGuard("role:"+name, func(ctx context.Context, rc *RequestContext) Outcome {
		if rc.Claims == nil {
			return Deny(shared.ErrUnauthenticated)
		}
		current := rc.Claims.RoleName
		if g.roleSource == RoleSourceLive {
			p, err := rc.Principal(ctx)
			if err != nil {
				return Deny(err)
			}
			current = p.RoleName
		}
		if current != name {
			return Deny(&shared.ForbiddenError{RequiredRole: name, CurrentRole: current})
		}
		return Allow()
	})
}

// Chain runs guards in order and stops at the first denial. Authentication is always
// checked first.
func (g *Gate) Chain(guards ...Guard) func(http.Handler) http.Handler {
	ordered := make([]Guard, 0, len(guards)+1)
	ordered = append(ordered, g.RequireAuthenticated())
	ordered = append(ordered, guards...)
	return g.chain(ordered)
}

func (g *Gate) chain(guards []Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rc := &RequestContext{Request: r, resolver: g.resolver}
			for _, guard := range guards {
				outcome := guard.Check(ctx, rc)
				if !outcome.Allowed {
					g.record(guard.Name(), outcome.Err)
					g.logDenial(r, guard.Name(), rc, outcome.Err)
					g.errors.Respond(w, r, outcome.Err)
					return
				}
				g.record(guard.Name(), nil)
			}
			if rc.Session != nil {
				g.sessions.SetCookie(w, *rc.Session)
				w.Header().Set(SessionExpiresHeader, rc.Session.ExpiresAt.UTC().Format(time.RFC3339))
				ctx = shared.ContextWithSession(ctx, rc.Session)
			}
			if rc.Claims != nil {
				ctx = shared.ContextWithActor(ctx, shared.Actor{
					IdentityID: rc.Claims.IdentityID,
					LoginName:  rc.Claims.LoginName,
					RoleID:     rc.Claims.RoleID,
					RoleName:   rc.Claims.RoleName,
				})
			}
			if rc.principal != nil {
				ctx = ContextWithPrincipal(ctx, *rc.principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) record(guard string, err error) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordGuardDecision(guard, outcomeLabel(err))
}

func (g *Gate) logDenial(r *http.Request, guard string, rc *RequestContext, err error) {
	attrs := []any{
		slog.String("guard", guard),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	}
	if rc.Claims != nil {
		attrs = append(attrs, slog.Int64("identity_id", rc.Claims.IdentityID), slog.String("role", rc.Claims.RoleName))
	}
	if httpx.Classify(err).Status >= http.StatusInternalServerError {
		g.logger.Error("guard failed", attrs...)
		return
	}
	g.logger.Warn("access denied", attrs...)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, shared.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrUnauthenticated),
		errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrExpiredToken):
		return "unauthenticated"
	default:
		return "error"
	}
}

type principalContextKey struct{}

// ContextWithPrincipal stores a resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal resolved by the gate, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
