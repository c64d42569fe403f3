package users

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/productmanager/internal/platform/db"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const userSelect = `
SELECT u.id, u.login_name, u.role_id, r.name, u.last_authenticated_at, u.created_at
FROM users u
JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.LoginName, &u.RoleID, &u.RoleName, &u.LastAuthenticatedAt, &u.CreatedAt); err != nil {
		return User{}, db.MapError(err)
	}
	return u, nil
}

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` ORDER BY u.created_at DESC, u.id DESC`)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser loads a user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
}

// LoginExists reports whether another user already has the login name.
func (r *Repository) LoginExists(ctx context.Context, loginName string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE login_name = $1 AND id <> $2)`, loginName, excludeID).Scan(&exists)
	return exists, db.MapError(err)
}

// RoleExists reports whether the role exists.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	return exists, db.MapError(err)
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, u NewUser) (User, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (login_name, credential_hash, role_id) VALUES ($1, $2, $3)
RETURNING id`, u.LoginName, u.CredentialHash, u.RoleID).Scan(&id)
	if err != nil {
		return User{}, db.MapError(err)
	}
	return r.GetUser(ctx, id)
}

// UpdateUser applies a partial update.
func (r *Repository) UpdateUser(ctx context.Context, id int64, c Changes) (User, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET login_name = COALESCE($2, login_name),
    credential_hash = COALESCE($3, credential_hash),
    role_id = COALESCE($4, role_id)
WHERE id = $1`, id, c.LoginName, c.CredentialHash, c.RoleID)
	if err != nil {
		return User{}, db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return User{}, shared.ErrNotFound
	}
	return r.GetUser(ctx, id)
}

// DeleteUser removes a user.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
