package products

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/productmanager/internal/platform/db"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Repository provides PostgreSQL backed product persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const productSelect = `
SELECT p.id, p.code, p.name, p.description, p.quantity, p.price::float8, u.login_name, p.created_at, p.updated_at
FROM products p
LEFT JOIN users u ON u.id = p.created_by`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Quantity, &p.Price, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, db.MapError(err)
	}
	return p, nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	defer rows.Close()
	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err)
	}
	return products, nil
}

// ListProducts returns every product with its creator, newest first.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	return r.query(ctx, productSelect+` ORDER BY p.created_at DESC, p.id DESC`)
}

// SearchProducts matches term case-insensitively against code, name and description.
func (r *Repository) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	pattern := "%" + escapeLike(term) + "%"
	return r.query(ctx, productSelect+`
WHERE p.code ILIKE $1 OR p.name ILIKE $1 OR p.description ILIKE $1
ORDER BY p.created_at DESC, p.id DESC`, pattern)
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id))
}

// CodeExists reports whether another product already uses code.
func (r *Repository) CodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE code = $1 AND id <> $2)`, code, excludeID).Scan(&exists)
	return exists, db.MapError(err)
}

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO products (code, name, description, quantity, price, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, p.Code, p.Name, p.Description, p.Quantity, p.Price, p.CreatedByID).Scan(&id)
	if err != nil {
		return Product{}, db.MapError(err)
	}
	return r.GetProduct(ctx, id)
}

// UpdateProduct applies a partial update. An empty description clears it.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, c Changes) (Product, error) {
	var description string
	if c.Description != nil {
		description = *c.Description
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE products
SET code = COALESCE($2, code),
    name = COALESCE($3, name),
    description = CASE WHEN $4::boolean THEN NULLIF($5, '') ELSE description END,
    quantity = COALESCE($6, quantity),
    price = COALESCE($7, price),
    updated_at = NOW()
WHERE id = $1`, id, c.Code, c.Name, c.Description != nil, description, c.Quantity, c.Price)
	if err != nil {
		return Product{}, db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return Product{}, shared.ErrNotFound
	}
	return r.GetProduct(ctx, id)
}

// DeleteProduct removes a product.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Stats aggregates the catalogue in a single pass.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(quantity), 0)::bigint,
       COALESCE(AVG(price), 0)::float8,
       COALESCE(MIN(price), 0)::float8,
       COALESCE(MAX(price), 0)::float8,
       COUNT(*) FILTER (WHERE quantity < $1)
FROM products`, LowStockThreshold).Scan(&s.TotalProducts, &s.TotalQuantity, &s.AveragePrice, &s.MinPrice, &s.MaxPrice, &s.LowStockCount)
	if err != nil {
		return Stats{}, db.MapError(err)
	}
	return s, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
