// Package rbactest provides an in-memory rbac.Store for tests.
package rbactest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Store is a mutex guarded rbac.Store.
type Store struct {
	mu          sync.Mutex
	identities  map[int64]rbac.Identity
	roles       map[int64]rbac.Role
	permissions map[int64]rbac.Permission
	edges       map[int64][]int64
	nextID      int64

	// ReplaceCalls counts ReplaceRolePermissions invocations.
	ReplaceCalls int
	// FailWith, when set, is returned by every lookup.
	FailWith error
}

var _ rbac.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		identities:  make(map[int64]rbac.Identity),
		roles:       make(map[int64]rbac.Role),
		permissions: make(map[int64]rbac.Permission),
		edges:       make(map[int64][]int64),
		nextID:      1,
	}
}

// Seeded returns a store holding the default catalog and built-in roles.
func Seeded() *Store {
	s := New()
	byName := make(map[string]int64)
	for _, entry := range shared.PermissionCatalog() {
		byName[entry.Name] = s.AddPermission(entry.Name, entry.Description).ID
	}
	grants := shared.DefaultRoleGrants()
	for _, name := range []string{shared.RoleSuperAdmin, shared.RoleAuditor, shared.RoleRegistrador} {
		role := s.AddRole(name, name+" role")
		ids := make([]int64, 0, len(grants[name]))
		for _, perm := range grants[name] {
			ids = append(ids, byName[perm])
		}
		s.edges[role.ID] = ids
	}
	return s
}

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// AddPermission inserts a catalog entry.
func (s *Store) AddPermission(name, description string) rbac.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := rbac.Permission{ID: s.id(), Name: name, Description: description}
	s.permissions[p.ID] = p
	return p
}

// AddRole inserts a role.
func (s *Store) AddRole(name, description string) rbac.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rbac.Role{ID: s.id(), Name: name, Description: description, CreatedAt: time.Now().UTC()}
	s.roles[r.ID] = r
	return r
}

// AddIdentity inserts an identity holding the named role.
func (s *Store) AddIdentity(loginName, credentialHash, roleName string) rbac.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roleID int64
	for _, r := range s.roles {
		if r.Name == roleName {
			roleID = r.ID
		}
	}
	ident := rbac.Identity{ID: s.id(), LoginName: loginName, CredentialHash: credentialHash, RoleID: roleID, CreatedAt: time.Now().UTC()}
	s.identities[ident.ID] = ident
	return ident
}

// SetIdentityRole reassigns an identity.
func (s *Store) SetIdentityRole(identityID, roleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident := s.identities[identityID]
	ident.RoleID = roleID
	s.identities[identityID] = ident
}

// RemoveIdentity deletes an identity.
func (s *Store) RemoveIdentity(identityID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, identityID)
}

// RoleByName returns the role with the given name or panics.
func (s *Store) RoleByName(name string) rbac.Role {
	role, err := s.FindRoleByName(context.Background(), name)
	if err != nil {
		panic(fmt.Sprintf("rbactest: role %q: %v", name, err))
	}
	return role
}

// PermissionID returns the id of the named permission or panics.
func (s *Store) PermissionID(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return p.ID
		}
	}
	panic("rbactest: unknown permission " + name)
}

// Edges returns the permission ids linked to the role, sorted.
func (s *Store) Edges(roleID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int64(nil), s.edges[roleID]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) FindIdentityByLogin(_ context.Context, loginName string) (rbac.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return rbac.Identity{}, s.FailWith
	}
	for _, ident := range s.identities {
		if ident.LoginName == loginName {
			return ident, nil
		}
	}
	return rbac.Identity{}, shared.ErrNotFound
}

func (s *Store) FindIdentityByID(_ context.Context, id int64) (rbac.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return rbac.Identity{}, s.FailWith
	}
	ident, ok := s.identities[id]
	if !ok {
		return rbac.Identity{}, shared.ErrNotFound
	}
	return ident, nil
}

func (s *Store) TouchLastAuthenticated(_ context.Context, identityID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return shared.ErrNotFound
	}
	ident.LastAuthenticatedAt = &at
	s.identities[identityID] = ident
	return nil
}

func (s *Store) FindRoleByID(_ context.Context, id int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return rbac.Role{}, s.FailWith
	}
	role, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *Store) FindRoleByName(_ context.Context, name string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return rbac.Role{}, shared.ErrNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]rbac.RoleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.RoleSummary, 0, len(s.roles))
	for _, role := range s.roles {
		names := make([]string, 0, len(s.edges[role.ID]))
		for _, pid := range s.edges[role.ID] {
			names = append(names, s.permissions[pid].Name)
		}
		sort.Strings(names)
		out = append(out, rbac.RoleSummary{Role: role, UserCount: s.holdersLocked(role.ID), Permissions: names})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateRole(_ context.Context, name, description string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if strings.EqualFold(role.Name, name) {
			return rbac.Role{}, fmt.Errorf("%w: roles_name_key", shared.ErrConstraint)
		}
	}
	role := rbac.Role{ID: s.id(), Name: name, Description: description, CreatedAt: time.Now().UTC()}
	s.roles[role.ID] = role
	return role, nil
}

func (s *Store) UpdateRole(_ context.Context, id int64, update rbac.RoleUpdate) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	if update.Name != nil {
		for _, other := range s.roles {
			if other.ID != id && strings.EqualFold(other.Name, *update.Name) {
				return rbac.Role{}, fmt.Errorf("%w: roles_name_key", shared.ErrConstraint)
			}
		}
		role.Name = *update.Name
	}
	if update.Description != nil {
		role.Description = *update.Description
	}
	s.roles[id] = role
	return role, nil
}

func (s *Store) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	if n := s.holdersLocked(id); n > 0 {
		return fmt.Errorf("%w: role is assigned to %d users", shared.ErrReferential, n)
	}
	delete(s.roles, id)
	delete(s.edges, id)
	return nil
}

func (s *Store) ListPermissions(_ context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListPermissionsForRole(_ context.Context, roleID int64) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]rbac.Permission, 0, len(s.edges[roleID]))
	for _, pid := range s.edges[roleID] {
		out = append(out, s.permissions[pid])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ReplaceRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReplaceCalls++
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	seen := make(map[int64]struct{}, len(permissionIDs))
	for _, pid := range permissionIDs {
		if _, dup := seen[pid]; dup {
			return shared.NewValidationError("permissionIds", "contains duplicate ids")
		}
		seen[pid] = struct{}{}
	}
	known := 0
	for _, pid := range permissionIDs {
		if _, ok := s.permissions[pid]; ok {
			known++
		}
	}
	if known != len(permissionIDs) {
		return fmt.Errorf("%w: one or more permissions do not exist", shared.ErrConstraint)
	}
	s.edges[roleID] = append([]int64(nil), permissionIDs...)
	return nil
}

func (s *Store) CountIdentitiesWithRole(_ context.Context, roleID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdersLocked(roleID), nil
}

func (s *Store) ListIdentityIDsWithRole(_ context.Context, roleID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, ident := range s.identities {
		if ident.RoleID == roleID {
			ids = append(ids, ident.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) holdersLocked(roleID int64) int {
	n := 0
	for _, ident := range s.identities {
		if ident.RoleID == roleID {
			n++
		}
	}
	return n
}
