package database

import (
	"context"
)

const createTable = `-- name: CreateTable :one
INSERT INTO tables (number, status)
VALUES ($1, $2)
RETURNING id, number, status, created_at, updated_at
`

type CreateTableParams struct {
	Number int32  `json:"number"`
	Status string `json:"status"`
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, createTable, arg.Number, arg.Status)
	var i Table
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getTable = `-- name: GetTable :one
SELECT id, number, status, created_at, updated_at
FROM tables
WHERE id = $1
`

func (q *Queries) GetTable(ctx context.Context, id int64) (Table, error) {
	row := q.db.QueryRow(ctx, getTable, id)
	var i Table
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getTableForUpdate = `-- name: GetTableForUpdate :one
SELECT id, number, status, created_at, updated_at
FROM tables
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetTableForUpdate(ctx context.Context, id int64) (Table, error) {
	row := q.db.QueryRow(ctx, getTableForUpdate, id)
	var i Table
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getTableByNumberForUpdate = `-- name: GetTableByNumberForUpdate :one
SELECT id, number, status, created_at, updated_at
FROM tables
WHERE number = $1
FOR UPDATE
`

func (q *Queries) GetTableByNumberForUpdate(ctx context.Context, number int32) (Table, error) {
	row := q.db.QueryRow(ctx, getTableByNumberForUpdate, number)
	var i Table
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listTables = `-- name: ListTables :many
SELECT id, number, status, created_at, updated_at
FROM tables
ORDER BY number
`

func (q *Queries) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := q.db.Query(ctx, listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Table{}
	for rows.Next() {
		var i Table
		if err := rows.Scan(
			&i.ID,
			&i.Number,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const updateTableStatus = `-- name: UpdateTableStatus :one
UPDATE tables
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING id, number, status, created_at, updated_at
`

type UpdateTableStatusParams struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (Table, error) {
	row := q.db.QueryRow(ctx, updateTableStatus, arg.ID, arg.Status)
	var i Table
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
