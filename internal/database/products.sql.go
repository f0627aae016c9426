package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, price, description, image, category_id, is_highlight)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, price, description, image, category_id, is_highlight, created_at, updated_at
`

type CreateProductParams struct {
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
	Description pgtype.Text    `json:"description"`
	Image       pgtype.Text    `json:"image"`
	CategoryID  pgtype.Int8    `json:"category_id"`
	IsHighlight bool           `json:"is_highlight"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.Name,
		arg.Price,
		arg.Description,
		arg.Image,
		arg.CategoryID,
		arg.IsHighlight,
	)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Description,
		&i.Image,
		&i.CategoryID,
		&i.IsHighlight,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteProduct = `-- name: DeleteProduct :one
DELETE FROM products WHERE id = $1
RETURNING id
`

func (q *Queries) DeleteProduct(ctx context.Context, id int64) (int64, error) {
	row := q.db.QueryRow(ctx, deleteProduct, id)
	var deleted int64
	err := row.Scan(&deleted)
	return deleted, err
}

const getProduct = `-- name: GetProduct :one
SELECT p.id, p.name, p.price, p.description, p.image, p.category_id, p.is_highlight,
       p.created_at, p.updated_at, c.name AS category_name
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
WHERE p.id = $1
`

type ProductRow struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Price        pgtype.Numeric `json:"price"`
	Description  pgtype.Text    `json:"description"`
	Image        pgtype.Text    `json:"image"`
	CategoryID   pgtype.Int8    `json:"category_id"`
	IsHighlight  bool           `json:"is_highlight"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CategoryName pgtype.Text    `json:"category_name"`
}

func (q *Queries) GetProduct(ctx context.Context, id int64) (ProductRow, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var i ProductRow
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Description,
		&i.Image,
		&i.CategoryID,
		&i.IsHighlight,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CategoryName,
	)
	return i, err
}

const getProductForOrder = `-- name: GetProductForOrder :one
SELECT id, name, price FROM products WHERE id = $1
`

type GetProductForOrderRow struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) GetProductForOrder(ctx context.Context, id int64) (GetProductForOrderRow, error) {
	row := q.db.QueryRow(ctx, getProductForOrder, id)
	var i GetProductForOrderRow
	err := row.Scan(&i.ID, &i.Name, &i.Price)
	return i, err
}

const listProducts = `-- name: ListProducts :many
SELECT p.id, p.name, p.price, p.description, p.image, p.category_id, p.is_highlight,
       p.created_at, p.updated_at, c.name AS category_name
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
ORDER BY c.name NULLS LAST, p.name
`

func (q *Queries) ListProducts(ctx context.Context) ([]ProductRow, error) {
	rows, err := q.db.Query(ctx, listProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProductRow{}
	for rows.Next() {
		var i ProductRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Price,
			&i.Description,
			&i.Image,
			&i.CategoryID,
			&i.IsHighlight,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.CategoryName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setProductImage = `-- name: SetProductImage :one
UPDATE products SET image = $2, updated_at = now()
WHERE id = $1
RETURNING id, name, price, description, image, category_id, is_highlight, created_at, updated_at
`

type SetProductImageParams struct {
	ID    int64       `json:"id"`
	Image pgtype.Text `json:"image"`
}

func (q *Queries) SetProductImage(ctx context.Context, arg SetProductImageParams) (Product, error) {
	row := q.db.QueryRow(ctx, setProductImage, arg.ID, arg.Image)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Description,
		&i.Image,
		&i.CategoryID,
		&i.IsHighlight,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const toggleProductHighlight = `-- name: ToggleProductHighlight :one
UPDATE products SET is_highlight = NOT is_highlight, updated_at = now()
WHERE id = $1
RETURNING id, name, price, description, image, category_id, is_highlight, created_at, updated_at
`

func (q *Queries) ToggleProductHighlight(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRow(ctx, toggleProductHighlight, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Description,
		&i.Image,
		&i.CategoryID,
		&i.IsHighlight,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateProduct = `-- name: UpdateProduct :one
UPDATE products
SET name = $2, price = $3, description = $4, image = $5, category_id = $6,
    is_highlight = $7, updated_at = now()
WHERE id = $1
RETURNING id, name, price, description, image, category_id, is_highlight, created_at, updated_at
`

type UpdateProductParams struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
	Description pgtype.Text    `json:"description"`
	Image       pgtype.Text    `json:"image"`
	CategoryID  pgtype.Int8    `json:"category_id"`
	IsHighlight bool           `json:"is_highlight"`
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.ID,
		arg.Name,
		arg.Price,
		arg.Description,
		arg.Image,
		arg.CategoryID,
		arg.IsHighlight,
	)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Description,
		&i.Image,
		&i.CategoryID,
		&i.IsHighlight,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
