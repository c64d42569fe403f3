package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
)

// Service wraps authentication business rules.
type Service struct {
	store    rbac.Store
	resolver *rbac.Resolver
	tokens   *token.Manager
	sessions *shared.SessionTracker
	hasher   *Hasher
	logger   *slog.Logger
	validate *validator.Validate
	now      shared.Clock
}

// NewService constructs a new Service.
func NewService(store rbac.Store, tokens *token.Manager, sessions *shared.SessionTracker, hasher *Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		resolver: rbac.NewResolver(store),
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
	}
}

// Authenticate validates login credentials.
func (s *Service) Authenticate(ctx context.Context, loginName, password string) (rbac.Identity, error) {
	ident, err := s.store.FindIdentityByLogin(ctx, shared.NormalizeIdentifier(loginName))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return rbac.Identity{}, shared.ErrInvalidCredentials
		}
		return rbac.Identity{}, err
	}
	ok, err := s.hasher.Compare(ident.CredentialHash, password)
	if err != nil {
		return rbac.Identity{}, fmt.Errorf("auth: compare credential: %w", err)
	}
	if !ok {
		return rbac.Identity{}, shared.ErrInvalidCredentials
	}
	return ident, nil
}

// Login authenticates, opens a session and issues a token bound to it.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return LoginResult{}, shared.ValidationErrorFrom(err)
	}
	ident, err := s.Authenticate(ctx, req.LoginName, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.logger.Warn("login rejected", slog.String("login", req.LoginName))
		}
		return LoginResult{}, err
	}
	principal, err := s.resolver.Resolve(ctx, ident.ID)
	if err != nil {
		return LoginResult{}, err
	}
	sess, err := s.sessions.Start(ctx, ident.ID, principal.RoleID)
	if err != nil {
		return LoginResult{}, err
	}
	raw, claims, err := s.tokens.Issue(token.Subject{
		IdentityID: principal.IdentityID,
		LoginName:  principal.LoginName,
		RoleID:     principal.RoleID,
		RoleName:   principal.RoleName,
		SessionID:  sess.ID,
	})
	if err != nil {
		_ = s.sessions.Destroy(ctx, sess.ID)
		return LoginResult{}, err
	}
	if err := s.store.TouchLastAuthenticated(ctx, ident.ID, s.now().UTC()); err != nil {
		s.logger.Warn("record last login", slog.Int64("identity_id", ident.ID), slog.Any("error", err))
	}
	s.logger.Info("login", slog.Int64("identity_id", ident.ID), slog.String("role", principal.RoleName))
	return LoginResult{
		Token:       raw,
		ExpiresAt:   claims.ExpiresAt.Time,
		Identity:    principal,
		Permissions: principal.Permissions.Names(),
		Session:     s.sessionInfo(sess),
		SessionID:   sess.ID,
	}, nil
}

// Logout destroys the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(ctx, sessionID)
}

// SessionIDFromToken returns the session bound to a verifiable token, or "".
func (s *Service) SessionIDFromToken(raw string) string {
	claims, err := s.tokens.Verify(raw)
	if err != nil {
		return ""
	}
	return claims.SessionID
}

// Current returns the caller's live identity summary.
func (s *Service) Current(ctx context.Context, identityID int64) (rbac.Principal, error) {
	p, err := s.resolver.Resolve(ctx, identityID)
	if errors.Is(err, shared.ErrNotFound) {
		return rbac.Principal{}, shared.ErrUnauthenticated
	}
	return p, err
}

// sessionInfo describes sess for clients.
func (s *Service) sessionInfo(sess shared.Session) SessionInfo {
	return SessionInfo{
		ExpiresAt:         sess.ExpiresAt,
		InactivitySeconds: int(s.sessions.Inactivity().Seconds()),
		WarningSeconds:    int(s.sessions.Warning().Seconds()),
	}
}
