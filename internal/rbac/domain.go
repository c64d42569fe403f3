package rbac

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Identity is an authenticable account.
type Identity struct {
	ID                  int64
	LoginName           string
	CredentialHash      string
	RoleID              int64
	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoleSummary is a role with its assignment counts.
type RoleSummary struct {
	Role
	UserCount   int      `json:"userCount"`
	Permissions []string `json:"permissions"`
}

// RoleDetail is a role with its full permission records.
type RoleDetail struct {
	Role
	UserCount   int          `json:"userCount"`
	Permissions []Permission `json:"permissions"`
}

// RoleUpdate carries a partial role edit. Nil fields are left unchanged.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PermissionSet is a set of permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission records.
func NewPermissionSet(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[normalizePermission(p.Name)] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[normalizePermission(name)]
	return ok
}

// Names returns the sorted permission names.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// Principal is the live view of an identity: its current role and permissions.
type Principal struct {
	IdentityID  int64         `json:"id"`
	LoginName   string        `json:"loginName"`
	RoleID      int64         `json:"roleId"`
	RoleName    string        `json:"roleName"`
	Permissions PermissionSet `json:"permissions"`
}

func normalizePermission(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func permissionNames(perms []Permission) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
