package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (name)
VALUES ($1)
RETURNING id, name, created_at
`

func (q *Queries) CreateCategory(ctx context.Context, name string) (Category, error) {
	row := q.db.QueryRow(ctx, createCategory, name)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const deleteCategory = `-- name: DeleteCategory :one
DELETE FROM categories WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRow(ctx, deleteCategory, id)
	var deleted int64
	err := row.Scan(&deleted)
	return deleted, err
}

const ensureCategory = `-- name: EnsureCategory :one
INSERT INTO categories (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, created_at
`

// EnsureCategory returns the category with the given name, creating it if needed.
func (q *Queries) EnsureCategory(ctx context.Context, name string) (Category, error) {
	row := q.db.QueryRow(ctx, ensureCategory, name)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const getCategory = `-- name: GetCategory :one
SELECT id, name, created_at FROM categories WHERE id = $1
`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	row := q.db.QueryRow(ctx, getCategory, id)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, created_at FROM categories ORDER BY name
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Category{}
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const reassignProductsCategory = `-- name: ReassignProductsCategory :execrows
UPDATE products
SET category_id = $2, updated_at = now()
WHERE category_id = $1
`

type ReassignProductsCategoryParams struct {
	FromID int64       `json:"from_id"`
	ToID   pgtype.Int8 `json:"to_id"`
}

func (q *Queries) ReassignProductsCategory(ctx context.Context, arg ReassignProductsCategoryParams) (int64, error) {
	result, err := q.db.Exec(ctx, reassignProductsCategory, arg.FromID, arg.ToID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateCategory = `-- name: UpdateCategory :one
UPDATE categories SET name = $2 WHERE id = $1
RETURNING id, name, created_at
`

type UpdateCategoryParams struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRow(ctx, updateCategory, arg.ID, arg.Name)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.CreatedAt)
	return i, err
}
