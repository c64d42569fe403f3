package rbac

import (
	"context"
	"fmt"
)

// Resolver computes an identity's current role and permissions. It reads the store on
// every call so role edits apply to the next request.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads the identity, its current role and that role's permission set.
func (r *Resolver) Resolve(ctx context.Context, identityID int64) (Principal, error) {
	ident, err := r.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve identity %d: %w", identityID, err)
	}
	role, err := r.store.FindRoleByID(ctx, ident.RoleID)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve role %d: %w", ident.RoleID, err)
	}
	perms, err := r.store.ListPermissionsForRole(ctx, role.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve permissions for role %d: %w", role.ID, err)
	}
	return Principal{
		IdentityID:  ident.ID,
		LoginName:   ident.LoginName,
		RoleID:      role.ID,
		RoleName:    role.Name,
		Permissions: NewPermissionSet(perms),
	}, nil
}
