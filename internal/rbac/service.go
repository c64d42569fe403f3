package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

// RoleInput is the payload for creating a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,rolename"`
	Description string `json:"description" validate:"max=200"`
}

// RolePatch is a partial role edit.
type RolePatch struct {
	Name        *string `json:"name" validate:"omitempty,rolename"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

// PermissionAssignment replaces a role's permission set.
type PermissionAssignment struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required,min=1,dive,gt=0"`
}

// PermissionUpdate reports the outcome of a permission replacement.
type PermissionUpdate struct {
	RoleID              int64    `json:"roleId"`
	RoleName            string   `json:"roleName"`
	PermissionIDs       []int64  `json:"permissionIds"`
	Permissions         []string `json:"permissions"`
	PreviousPermissions []string `json:"previousPermissions"`
	AffectedUsers       int      `json:"affectedUsers"`
	Warning             string   `json:"warning,omitempty"`
}

// RolePermissionsChanged is published after a replacement commits.
type RolePermissionsChanged struct {
	RoleID        int64     `json:"role_id"`
	RoleName      string    `json:"role_name"`
	Previous      []string  `json:"previous"`
	Current       []string  `json:"current"`
	AffectedUsers int       `json:"affected_users"`
	ChangedBy     int64     `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

// Notifier receives role change notices. Delivery is advisory.
type Notifier interface {
	RolePermissionsChanged(ctx context.Context, event RolePermissionsChanged) error
}

// ServiceConfig configures the mutation service.
type ServiceConfig struct {
	SuperAdminRole string
	Clock          shared.Clock
}

// Service orchestrates role and permission mutations.
type Service struct {
	store      Store
	notifier   Notifier
	logger     *slog.Logger
	validate   *validator.Validate
	superAdmin string
	now        shared.Clock
}

// NewService constructs a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SuperAdminRole == "" {
		cfg.SuperAdminRole = shared.RoleSuperAdmin
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		validate:   shared.NewValidator(),
		superAdmin: cfg.SuperAdminRole,
		now:        cfg.Clock,
	}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []RoleSummary{}
	}
	return roles, nil
}

// GetRole fetches a role with its permissions and holder count.
func (s *Service) GetRole(ctx context.Context, id int64) (RoleDetail, error) {
	role, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	perms, err := s.store.ListPermissionsForRole(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	count, err := s.store.CountIdentitiesWithRole(ctx, id)
	if err != nil {
		return RoleDetail{}, err
	}
	return RoleDetail{Role: role, UserCount: count, Permissions: perms}, nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// RolePermissions returns the permissions currently linked to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.store.FindRoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.ListPermissionsForRole(ctx, roleID)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	input.Name = shared.NormalizeIdentifier(input.Name)
	input.Description = shared.PlainText(input.Description)
	if err := s.validate.Struct(input); err != nil {
		return Role{}, shared.ValidationErrorFrom(err)
	}
	if err := s.ensureNameFree(ctx, input.Name, 0); err != nil {
		return Role{}, err
	}
	role, err := s.store.CreateRole(ctx, input.Name, input.Description)
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("role created", slog.Int64("role_id", role.ID), slog.String("name", role.Name))
	return role, nil
}

// UpdateRole applies a partial edit. The super-administrator role cannot be renamed
// because role gated routes match on its name.
func (s *Service) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	if patch.Name == nil && patch.Description == nil {
		return Role{}, shared.NewValidationError("body", "no fields to update")
	}
	if patch.Name != nil {
		name := shared.NormalizeIdentifier(*patch.Name)
		patch.Name = &name
	}
	if patch.Description != nil {
		desc := shared.PlainText(*patch.Description)
		patch.Description = &desc
	}
	if err := s.validate.Struct(patch); err != nil {
		return Role{}, shared.ValidationErrorFrom(err)
	}
	current, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if patch.Name != nil && *patch.Name != current.Name {
		if current.Name == s.superAdmin {
			return Role{}, shared.NewValidationError("name", "the "+s.superAdmin+" role cannot be renamed")
		}
		if err := s.ensureNameFree(ctx, *patch.Name, id); err != nil {
			return Role{}, err
		}
	}
	return s.store.UpdateRole(ctx, id, RoleUpdate{Name: patch.Name, Description: patch.Description})
}

// DeleteRole removes a role that no identity holds.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.Int64("role_id", id), slog.String("name", role.Name))
	return nil
}

// UpdateRolePermissions replaces the role's permission set wholesale. Affected users are
// counted and reported but their sessions and tokens are left untouched.
func (s *Service) UpdateRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (PermissionUpdate, error) {
	assignment := PermissionAssignment{PermissionIDs: permissionIDs}
	if err := s.validate.Struct(assignment); err != nil {
		return PermissionUpdate{}, shared.ValidationErrorFrom(err)
	}
	if hasDuplicateIDs(permissionIDs) {
		return PermissionUpdate{}, shared.NewValidationError("permissionIds", "contains duplicate ids")
	}
	role, err := s.store.FindRoleByID(ctx, roleID)
	if err != nil {
		return PermissionUpdate{}, err
	}
	previous, err := s.store.ListPermissionsForRole(ctx, roleID)
	if err != nil {
		return PermissionUpdate{}, err
	}
	if err := s.store.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		if errors.Is(err, shared.ErrConstraint) {
			return PermissionUpdate{}, &shared.ValidationError{Fields: map[string]string{"permissionIds": "one or more permissions do not exist"}}
		}
		return PermissionUpdate{}, err
	}
	current, err := s.store.ListPermissionsForRole(ctx, roleID)
	if err != nil {
		return PermissionUpdate{}, err
	}
	affected, err := s.store.CountIdentitiesWithRole(ctx, roleID)
	if err != nil {
		return PermissionUpdate{}, err
	}

	update := PermissionUpdate{
		RoleID:              role.ID,
		RoleName:            role.Name,
		PermissionIDs:       append([]int64(nil), permissionIDs...),
		Permissions:         permissionNames(current),
		PreviousPermissions: permissionNames(previous),
		AffectedUsers:       affected,
	}
	if affected > 0 {
		update.Warning = fmt.Sprintf("%d users hold this role; they should sign in again to refresh their session details", affected)
	}
	s.logger.Info("role permissions replaced",
		slog.Int64("role_id", role.ID),
		slog.String("role", role.Name),
		slog.String("previous", strings.Join(update.PreviousPermissions, ",")),
		slog.String("current", strings.Join(update.Permissions, ",")),
		slog.Int("affected_users", affected),
	)
	s.notify(ctx, update)
	return update, nil
}

func (s *Service) notify(ctx context.Context, update PermissionUpdate) {
	if s.notifier == nil {
		return
	}
	event := RolePermissionsChanged{
		RoleID:        update.RoleID,
		RoleName:      update.RoleName,
		Previous:      update.PreviousPermissions,
		Current:       update.Permissions,
		AffectedUsers: update.AffectedUsers,
		ChangedAt:     s.now().UTC(),
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		event.ChangedBy = actor.IdentityID
	}
	if err := s.notifier.RolePermissionsChanged(ctx, event); err != nil {
		s.logger.Warn("role change notice not delivered", slog.Int64("role_id", update.RoleID), slog.Any("error", err))
	}
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.store.FindRoleByName(ctx, name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return fmt.Errorf("%w: role name already exists", shared.ErrConstraint)
	}
	return nil
}
