package shared

// Catalog permissions seeded at deployment.
const (
	PermViewProducts   = "view_products"
	PermCreateProducts = "create_products"
	PermEditProducts   = "edit_products"
	PermDeleteProducts = "delete_products"

	PermViewRoles   = "view_roles"
	PermCreateRoles = "create_roles"
	PermEditRoles   = "edit_roles"
	PermDeleteRoles = "delete_roles"

	PermViewReports = "view_reports"
)

// Built-in role names.
const (
	RoleSuperAdmin  = "SuperAdmin"
	RoleAuditor     = "Auditor"
	RoleRegistrador = "Registrador"
)

// CatalogEntry describes a seeded permission.
type CatalogEntry struct {
	Name        string
	Description string
}

// PermissionCatalog lists every permission the API checks.
func PermissionCatalog() []CatalogEntry {
	return []CatalogEntry{
		{PermViewProducts, "List and read products"},
		{PermCreateProducts, "Create products"},
		{PermEditProducts, "Edit products"},
		{PermDeleteProducts, "Delete products"},
		{PermViewRoles, "List and read roles"},
		{PermCreateRoles, "Create roles"},
		{PermEditRoles, "Edit roles"},
		{PermDeleteRoles, "Delete roles"},
		{PermViewReports, "View users and reports"},
	}
}

// DefaultRoleGrants maps built-in roles to their initial permission set.
func DefaultRoleGrants() map[string][]string {
	all := make([]string, 0, len(PermissionCatalog()))
	for _, entry := range PermissionCatalog() {
		all = append(all, entry.Name)
	}
	return map[string][]string{
		RoleSuperAdmin:  all,
		RoleAuditor:     {PermViewReports, PermViewProducts},
		RoleRegistrador: {PermViewProducts, PermCreateProducts, PermEditProducts},
	}
}
