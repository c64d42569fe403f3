package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	LoginExists(ctx context.Context, loginName string, excludeID int64) (bool, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)
	UpdateUser(ctx context.Context, id int64, c Changes) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// PasswordHasher hashes credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// SessionRevoker ends every session of an identity.
type SessionRevoker interface {
	DestroyIdentity(ctx context.Context, identityID int64) (int, error)
}

// PrincipalResolver resolves live permissions.
type PrincipalResolver interface {
	Resolve(ctx context.Context, identityID int64) (rbac.Principal, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	hasher   PasswordHasher
	sessions SessionRevoker
	resolver PrincipalResolver
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher PasswordHasher, sessions SessionRevoker, resolver PrincipalResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
		validate: shared.NewValidator(),
	}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// Permissions returns the user's live role and permissions.
func (s *Service) Permissions(ctx context.Context, id int64) (rbac.Principal, error) {
	return s.resolver.Resolve(ctx, id)
}

// CreateUser validates and inserts a user with a hashed credential.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (User, error) {
	in.LoginName = shared.NormalizeIdentifier(in.LoginName)
	if err := s.validate.Struct(in); err != nil {
		return User{}, shared.ValidationErrorFrom(err)
	}
	if err := s.checkLoginFree(ctx, in.LoginName, 0); err != nil {
		return User{}, err
	}
	if err := s.checkRole(ctx, in.RoleID); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, NewUser{LoginName: in.LoginName, CredentialHash: hash, RoleID: in.RoleID})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", user.RoleName))
	return user, nil
}

// UpdateUser applies a partial edit. Changing the role or the password ends the
// user's sessions so the next login picks up the new state.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateInput) (User, error) {
	if in.LoginName == nil && in.Password == nil && in.RoleID == nil {
		return User{}, shared.NewValidationError("body", "no fields to update")
	}
	if in.LoginName != nil {
		login := shared.NormalizeIdentifier(*in.LoginName)
		in.LoginName = &login
	}
	if err := s.validate.Struct(in); err != nil {
		return User{}, shared.ValidationErrorFrom(err)
	}
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	changes := Changes{}
	if in.LoginName != nil && *in.LoginName != current.LoginName {
		if err := s.checkLoginFree(ctx, *in.LoginName, id); err != nil {
			return User{}, err
		}
		changes.LoginName = in.LoginName
	}
	if in.RoleID != nil && *in.RoleID != current.RoleID {
		if err := s.checkRole(ctx, *in.RoleID); err != nil {
			return User{}, err
		}
		changes.RoleID = in.RoleID
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		changes.CredentialHash = &hash
	}
	if changes.LoginName == nil && changes.RoleID == nil && changes.CredentialHash == nil {
		return current, nil
	}
	revoke := changes.RoleID != nil || changes.CredentialHash != nil
	if revoke {
		if err := s.revoke(ctx, id, "credentials or role changing"); err != nil {
			return User{}, err
		}
	}
	updated, err := s.repo.UpdateUser(ctx, id, changes)
	if err != nil {
		return User{}, err
	}
	// A login that raced the update still carries the old role.
	if revoke {
		if err := s.revoke(ctx, id, "credentials or role changed"); err != nil {
			return User{}, err
		}
	}
	return updated, nil
}

// DeleteUser removes a user other than the caller and ends their sessions.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if actor, ok := shared.ActorFromContext(ctx); ok && actor.IdentityID == id {
		return shared.NewValidationError("id", "you cannot delete your own account")
	}
	if err := s.revoke(ctx, id, "user deleting"); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	if err := s.revoke(ctx, id, "user deleted"); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.Int64("user_id", id))
	return nil
}

// revoke ends every session of the user. A failure is returned so the change is
// reported as failed rather than leaving old sessions usable.
func (s *Service) revoke(ctx context.Context, id int64, reason string) error {
	if s.sessions == nil {
		return nil
	}
	n, err := s.sessions.DestroyIdentity(ctx, id)
	if err != nil {
		s.logger.Error("revoke sessions", slog.Int64("user_id", id), slog.Any("error", err))
		return fmt.Errorf("users: revoke sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("sessions revoked", slog.Int64("user_id", id), slog.Int("count", n), slog.String("reason", reason))
	}
	return nil
}

func (s *Service) checkLoginFree(ctx context.Context, login string, selfID int64) error {
	exists, err := s.repo.LoginExists(ctx, login, selfID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: login name already exists", shared.ErrConstraint)
	}
	return nil
}

func (s *Service) checkRole(ctx context.Context, roleID int64) error {
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewValidationError("roleId", "role does not exist")
	}
	return nil
}
