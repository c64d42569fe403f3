package rbac

import (
	"context"
	"time"
)

// Store is the credential store: identities, roles, the permission catalog and the
// role to permission edges. Lookups return shared.ErrNotFound for missing rows.
type Store interface {
	FindIdentityByLogin(ctx context.Context, loginName string) (Identity, error)
	FindIdentityByID(ctx context.Context, id int64) (Identity, error)
	TouchLastAuthenticated(ctx context.Context, identityID int64, at time.Time) error

	FindRoleByID(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]RoleSummary, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, update RoleUpdate) (Role, error)
	// DeleteRole fails with shared.ErrReferential while any identity holds the role.
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	ListPermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)
	// ReplaceRolePermissions atomically swaps the role's edges for permissionIDs. It
	// fails with shared.ErrConstraint when the catalog does not contain every id.
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	CountIdentitiesWithRole(ctx context.Context, roleID int64) (int, error)
	ListIdentityIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}
