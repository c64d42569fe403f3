package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/productmanager/internal/platform/db"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Repository is the PostgreSQL backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const identityColumns = `id, login_name, credential_hash, role_id, last_authenticated_at, created_at`

func scanIdentity(row pgx.Row) (Identity, error) {
	var ident Identity
	err := row.Scan(&ident.ID, &ident.LoginName, &ident.CredentialHash, &ident.RoleID, &ident.LastAuthenticatedAt, &ident.CreatedAt)
	if err != nil {
		return Identity{}, db.MapError(err)
	}
	return ident, nil
}

// FindIdentityByLogin loads an identity by login name.
func (r *Repository) FindIdentityByLogin(ctx context.Context, loginName string) (Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE login_name = $1`, loginName))
}

// FindIdentityByID loads an identity by id.
func (r *Repository) FindIdentityByID(ctx context.Context, id int64) (Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE id = $1`, id))
}

// TouchLastAuthenticated stamps a successful login.
func (r *Repository) TouchLastAuthenticated(ctx context.Context, identityID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_authenticated_at = $2 WHERE id = $1`, identityID, at)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		return Role{}, db.MapError(err)
	}
	return role, nil
}

// FindRoleByID loads a role.
func (r *Repository) FindRoleByID(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), created_at FROM roles WHERE id = $1`, id))
}

// FindRoleByName loads a role by its unique name.
func (r *Repository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), created_at FROM roles WHERE name = $1`, name))
}

// ListRoles returns all roles ordered by name with user counts and permission names.
func (r *Repository) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	rows, err := r.pool.Query(ctx, `
SELECT r.id, r.name, COALESCE(r.description, ''), r.created_at,
       (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id),
       ARRAY(SELECT p.name FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
             WHERE rp.role_id = r.id ORDER BY p.name)
FROM roles r
ORDER BY r.name`)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	var out []RoleSummary
	for rows.Next() {
		var s RoleSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UserCount, &s.Permissions); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
INSERT INTO roles (name, description) VALUES ($1, NULLIF($2, ''))
RETURNING id, name, COALESCE(description, ''), created_at`, name, description))
}

// UpdateRole applies a partial edit.
func (r *Repository) UpdateRole(ctx context.Context, id int64, update RoleUpdate) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
UPDATE roles
SET name = COALESCE($2, name),
    description = CASE WHEN $3::text IS NULL THEN description ELSE NULLIF($3, '') END
WHERE id = $1
RETURNING id, name, COALESCE(description, ''), created_at`, id, update.Name, update.Description))
}

// DeleteRole removes a role and its edges when no identity holds it.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, id); err != nil {
			return err
		}
		var holders int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, id).Scan(&holders); err != nil {
			return err
		}
		if holders > 0 {
			return fmt.Errorf("%w: role is assigned to %d users", shared.ErrReferential, holders)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return db.MapError(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return db.MapError(err)
		}
		return nil
	})
}

// ListPermissions returns the catalog ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.queryPermissions(ctx, `SELECT id, name, COALESCE(description, '') FROM permissions ORDER BY name`)
}

// ListPermissionsForRole returns the permissions currently linked to the role.
func (r *Repository) ListPermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.queryPermissions(ctx, `
SELECT p.id, p.name, COALESCE(p.description, '')
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.name`, roleID)
}

func (r *Repository) queryPermissions(ctx context.Context, sql string, args ...any) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions deletes the role's edges and inserts the new set in one
// transaction. The role row is locked first so concurrent replacements run one after
// the other; read committed lets the later one see and delete the earlier one's edges.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if hasDuplicateIDs(permissionIDs) {
		return shared.NewValidationError("permissionIds", "contains duplicate ids")
	}
	return db.RunTx(ctx, r.pool, db.TxOptions{Level: pgx.ReadCommitted, Attempts: 3}, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		var known int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, permissionIDs).Scan(&known); err != nil {
			return err
		}
		if known != len(permissionIDs) {
			return fmt.Errorf("%w: one or more permissions do not exist", shared.ErrConstraint)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return db.MapError(err)
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
				return db.MapError(err)
			}
		}
		return nil
	})
}

// CountIdentitiesWithRole counts identities currently assigned to the role.
func (r *Repository) CountIdentitiesWithRole(ctx context.Context, roleID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&n); err != nil {
		return 0, db.MapError(err)
	}
	return n, nil
}

// ListIdentityIDsWithRole lists the ids of identities assigned to the role.
func (r *Repository) ListIdentityIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE role_id = $1 ORDER BY id`, roleID)
	if err != nil {
		return nil, db.MapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func lockRole(ctx context.Context, tx pgx.Tx, roleID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func hasDuplicateIDs(ids []int64) bool {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
