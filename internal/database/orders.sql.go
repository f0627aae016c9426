package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_id, status, total, payment_method, timestamp, updated_at`

const orderItemColumns = `id, order_id, product_id, name, quantity, price, status, observation`

func scanOrders(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Order, error) {
	items := []Order{}
	for rows.Next() {
		var i Order
		if err := rows.Scan(
			&i.ID,
			&i.TableID,
			&i.Status,
			&i.Total,
			&i.PaymentMethod,
			&i.Timestamp,
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

func scanOrderItems(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]OrderItem, error) {
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ProductID,
			&i.Name,
			&i.Quantity,
			&i.Price,
			&i.Status,
			&i.Observation,
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

const countPendingItemsByTable = `-- name: CountPendingItemsByTable :one
SELECT count(*)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE o.table_id = $1 AND o.status <> 'PAID' AND oi.status = 'PENDING'
`

func (q *Queries) CountPendingItemsByTable(ctx context.Context, tableID int64) (int64, error) {
	row := q.db.QueryRow(ctx, countPendingItemsByTable, tableID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (table_id, status, total, payment_method)
VALUES ($1, $2, $3, $4)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableID       int64          `json:"table_id"`
	Status        string         `json:"status"`
	Total         pgtype.Numeric `json:"total"`
	PaymentMethod pgtype.Text    `json:"payment_method"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder, arg.TableID, arg.Status, arg.Total, arg.PaymentMethod)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.Status,
		&i.Total,
		&i.PaymentMethod,
		&i.Timestamp,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, name, quantity, price, status, observation)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID     int64          `json:"order_id"`
	ProductID   pgtype.Int8    `json:"product_id"`
	Name        string         `json:"name"`
	Quantity    int32          `json:"quantity"`
	Price       pgtype.Numeric `json:"price"`
	Status      string         `json:"status"`
	Observation pgtype.Text    `json:"observation"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.Name,
		arg.Quantity,
		arg.Price,
		arg.Status,
		arg.Observation,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.Name,
		&i.Quantity,
		&i.Price,
		&i.Status,
		&i.Observation,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.Status,
		&i.Total,
		&i.PaymentMethod,
		&i.Timestamp,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderForUpdate, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.Status,
		&i.Total,
		&i.PaymentMethod,
		&i.Timestamp,
		&i.UpdatedAt,
	)
	return i, err
}

const listItemStatusesByOrder = `-- name: ListItemStatusesByOrder :many
SELECT status FROM order_items WHERE order_id = $1 ORDER BY id
`

func (q *Queries) ListItemStatusesByOrder(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, listItemStatusesByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		items = append(items, status)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listOrderItemsByOrders = `-- name: ListOrderItemsByOrders :many
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = ANY($1::bigint[])
ORDER BY order_id, id
`

func (q *Queries) ListOrderItemsByOrders(ctx context.Context, orderIDs []int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrders, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderItems(rows)
}

const listOrderItemsForReport = `-- name: ListOrderItemsForReport :many
SELECT oi.id, oi.order_id, oi.product_id, oi.name, oi.quantity, oi.price, oi.status, oi.observation
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE ($1::timestamptz IS NULL OR o.timestamp >= $1)
  AND ($2::timestamptz IS NULL OR o.timestamp < $2)
ORDER BY oi.id
`

type ReportRangeParams struct {
	From pgtype.Timestamptz `json:"from"`
	To   pgtype.Timestamptz `json:"to"`
}

func (q *Queries) ListOrderItemsForReport(ctx context.Context, arg ReportRangeParams) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsForReport, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrderItems(rows)
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::bigint IS NULL OR table_id = $1)
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::boolean OR status <> 'PAID')
ORDER BY timestamp DESC, id DESC
`

type ListOrdersParams struct {
	TableID     pgtype.Int8 `json:"table_id"`
	Status      pgtype.Text `json:"status"`
	ExcludePaid bool        `json:"exclude_paid"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.TableID, arg.Status, arg.ExcludePaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

const listOrdersForReport = `-- name: ListOrdersForReport :many
SELECT o.id, o.table_id, t.number, o.status, o.total, o.payment_method, o.timestamp
FROM orders o
JOIN tables t ON t.id = o.table_id
WHERE ($1::timestamptz IS NULL OR o.timestamp >= $1)
  AND ($2::timestamptz IS NULL OR o.timestamp < $2)
ORDER BY o.timestamp
`

type ReportOrderRow struct {
	ID            int64          `json:"id"`
	TableID       int64          `json:"table_id"`
	TableNumber   int32          `json:"table_number"`
	Status        string         `json:"status"`
	Total         pgtype.Numeric `json:"total"`
	PaymentMethod pgtype.Text    `json:"payment_method"`
	Timestamp     time.Time      `json:"timestamp"`
}

func (q *Queries) ListOrdersForReport(ctx context.Context, arg ReportRangeParams) ([]ReportOrderRow, error) {
	rows, err := q.db.Query(ctx, listOrdersForReport, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ReportOrderRow{}
	for rows.Next() {
		var i ReportOrderRow
		if err := rows.Scan(
			&i.ID,
			&i.TableID,
			&i.TableNumber,
			&i.Status,
			&i.Total,
			&i.PaymentMethod,
			&i.Timestamp,
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

const listUnpaidOrdersByTable = `-- name: ListUnpaidOrdersByTable :many
SELECT ` + orderColumns + `
FROM orders
WHERE table_id = $1 AND status <> 'PAID'
ORDER BY timestamp, id
`

func (q *Queries) ListUnpaidOrdersByTable(ctx context.Context, tableID int64) ([]Order, error) {
	rows, err := q.db.Query(ctx, listUnpaidOrdersByTable, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

const markTableOrdersPaid = `-- name: MarkTableOrdersPaid :many
UPDATE orders
SET status = 'PAID', payment_method = COALESCE($2, payment_method), updated_at = now()
WHERE table_id = $1 AND status <> 'PAID'
RETURNING ` + orderColumns

type MarkTableOrdersPaidParams struct {
	TableID       int64       `json:"table_id"`
	PaymentMethod pgtype.Text `json:"payment_method"`
}

func (q *Queries) MarkTableOrdersPaid(ctx context.Context, arg MarkTableOrdersPaidParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, markTableOrdersPaid, arg.TableID, arg.PaymentMethod)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

const updateOrderItemStatus = `-- name: UpdateOrderItemStatus :one
UPDATE order_items
SET status = $3
WHERE id = $1 AND order_id = $2
RETURNING ` + orderItemColumns

type UpdateOrderItemStatusParams struct {
	ID      int64  `json:"id"`
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (q *Queries) UpdateOrderItemStatus(ctx context.Context, arg UpdateOrderItemStatusParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, updateOrderItemStatus, arg.ID, arg.OrderID, arg.Status)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.Name,
		&i.Quantity,
		&i.Price,
		&i.Status,
		&i.Observation,
	)
	return i, err
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, payment_method = COALESCE($3, payment_method), updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID            int64       `json:"id"`
	Status        string      `json:"status"`
	PaymentMethod pgtype.Text `json:"payment_method"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.PaymentMethod)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.Status,
		&i.Total,
		&i.PaymentMethod,
		&i.Timestamp,
		&i.UpdatedAt,
	)
	return i, err
}
