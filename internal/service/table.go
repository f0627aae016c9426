package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/events"
	"github.com/mesa-digital/api/internal/metrics"
)

// Errors returned by the table service.
var (
	ErrInvalidTableNumber = errors.New("number must be a positive integer")
	ErrInvalidTableStatus = errors.New("invalid table status")
	ErrTableNumberTaken   = errors.New("table number already in use")
	ErrInvalidAttention   = errors.New("status must be CALLING_WAITER or BILL_REQUESTED")
	ErrTableNotOpen       = errors.New("table is not open")
	ErrUndeliveredItems   = errors.New("table has undelivered items")
	ErrInvalidPayment     = errors.New("invalid payment method")
)

const tableNumberConstraint = "tables_number_key"

// TableStore defines the DB methods needed by the table workflows.
// Satisfied by *database.Queries (and its WithTx variant).
type TableStore interface {
	GetTable(ctx context.Context, id int64) (database.Table, error)
	GetTableForUpdate(ctx context.Context, id int64) (database.Table, error)
	GetTableByNumberForUpdate(ctx context.Context, number int32) (database.Table, error)
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.Table, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.Table, error)
	CountPendingItemsByTable(ctx context.Context, tableID int64) (int64, error)
	MarkTableOrdersPaid(ctx context.Context, arg database.MarkTableOrdersPaidParams) ([]database.Order, error)
	ListUnpaidOrdersByTable(ctx context.Context, tableID int64) ([]database.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []int64) ([]database.OrderItem, error)
}

// NewTableStore creates a TableStore from a DBTX (pool or tx).
type NewTableStore func(db database.DBTX) TableStore

// CloseResult is a table returned to AVAILABLE and the orders it settled.
type CloseResult struct {
	Table database.Table
	Paid  []database.Order
}

// Bill is the running tab of a table's unpaid orders.
type Bill struct {
	Table                database.Table
	Orders               []OrderResult
	Subtotal             decimal.Decimal
	ServiceChargePercent decimal.Decimal
	ServiceCharge        decimal.Decimal
	Total                decimal.Decimal
}

// TableService handles table lifecycle transitions.
type TableService struct {
	db        DB
	newStore  NewTableStore
	publisher events.Publisher
}

func NewTableService(db DB, newStore NewTableStore, publisher events.Publisher) *TableService {
	return &TableService{db: db, newStore: newStore, publisher: publisher}
}

// OpenTable seats guests at the table with the given number. An AVAILABLE
// table becomes OCCUPIED and keeps its id; a table that is already open is
// returned unchanged; an unknown number creates a new OCCUPIED table.
func (s *TableService) OpenTable(ctx context.Context, number int32) (database.Table, error) {
	if number <= 0 {
		return database.Table{}, ErrInvalidTableNumber
	}

	table, changed, err := s.openTable(ctx, number)
	if isUniqueViolation(err, tableNumberConstraint) {
		// Another request created the same number first. Its row is
		// committed now, so a fresh attempt finds and reuses it.
		table, changed, err = s.openTable(ctx, number)
	}
	if isUniqueViolation(err, tableNumberConstraint) {
		return database.Table{}, ErrTableNumberTaken
	}
	if err != nil {
		return database.Table{}, err
	}

	if changed {
		s.tableChanged(ctx, table)
	}
	return table, nil
}

func (s *TableService) openTable(ctx context.Context, number int32) (database.Table, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.Table{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	changed := false

	table, err := store.GetTableByNumberForUpdate(ctx, number)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		table, err = store.CreateTable(ctx, database.CreateTableParams{
			Number: number,
			Status: enum.TableStatusOccupied,
		})
		if err != nil {
			return database.Table{}, false, fmt.Errorf("create table: %w", err)
		}
		changed = true
	case err != nil:
		return database.Table{}, false, fmt.Errorf("get table by number: %w", err)
	case table.Status == enum.TableStatusAvailable:
		table, err = store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
			ID:     table.ID,
			Status: enum.TableStatusOccupied,
		})
		if err != nil {
			return database.Table{}, false, fmt.Errorf("occupy table: %w", err)
		}
		changed = true
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Table{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return table, changed, nil
}

// CreateTable adds a table, AVAILABLE unless another status is given.
func (s *TableService) CreateTable(ctx context.Context, number int32, status string) (database.Table, error) {
	if number <= 0 {
		return database.Table{}, ErrInvalidTableNumber
	}
	if status == "" {
		status = enum.TableStatusAvailable
	}
	if !enum.ValidTableStatus(status) {
		return database.Table{}, ErrInvalidTableStatus
	}

	table, err := s.newStore(s.db).CreateTable(ctx, database.CreateTableParams{Number: number, Status: status})
	if isUniqueViolation(err, tableNumberConstraint) {
		return database.Table{}, ErrTableNumberTaken
	}
	if err != nil {
		return database.Table{}, fmt.Errorf("create table: %w", err)
	}

	s.tableChanged(ctx, table)
	return table, nil
}

// UpdateStatus overwrites the table status. Any status may follow any other.
func (s *TableService) UpdateStatus(ctx context.Context, id int64, status string) (database.Table, error) {
	if !enum.ValidTableStatus(status) {
		return database.Table{}, ErrInvalidTableStatus
	}

	table, err := s.newStore(s.db).UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: id, Status: status})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Table{}, ErrTableNotFound
	}
	if err != nil {
		return database.Table{}, fmt.Errorf("update table status: %w", err)
	}

	s.tableChanged(ctx, table)
	return table, nil
}

// RequestAttention lets a seated customer call the waiter or ask for the bill.
func (s *TableService) RequestAttention(ctx context.Context, id int64, status string) (database.Table, error) {
	if status != enum.TableStatusCallingWaiter && status != enum.TableStatusBillRequested {
		return database.Table{}, ErrInvalidAttention
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.Table{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	table, err := store.GetTableForUpdate(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Table{}, ErrTableNotFound
	}
	if err != nil {
		return database.Table{}, fmt.Errorf("get table: %w", err)
	}
	if table.Status == enum.TableStatusAvailable {
		return database.Table{}, ErrTableNotOpen
	}

	table, err = store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{ID: id, Status: status})
	if err != nil {
		return database.Table{}, fmt.Errorf("update table status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Table{}, fmt.Errorf("commit tx: %w", err)
	}

	s.tableChanged(ctx, table)
	return table, nil
}

// CloseTable settles a table: every unpaid order becomes PAID and the table
// returns to AVAILABLE. It refuses while any item is still pending.
func (s *TableService) CloseTable(ctx context.Context, id int64, paymentMethod string) (*CloseResult, error) {
	if paymentMethod != "" && !validPaymentMethod(paymentMethod) {
		return nil, ErrInvalidPayment
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetTableForUpdate(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}

	pending, err := store.CountPendingItemsByTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count pending items: %w", err)
	}
	if pending > 0 {
		return nil, ErrUndeliveredItems
	}

	paid, err := store.MarkTableOrdersPaid(ctx, database.MarkTableOrdersPaidParams{
		TableID:       id,
		PaymentMethod: database.Text(paymentMethod),
	})
	if err != nil {
		return nil, fmt.Errorf("mark orders paid: %w", err)
	}

	table, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		ID:     id,
		Status: enum.TableStatusAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("free table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	metrics.TableTransition(table.Status)
	s.publisher.Publish(ctx, events.New(events.TableClosed, table.ID, map[string]any{
		"table":      table,
		"paidOrders": len(paid),
	}))
	return &CloseResult{Table: table, Paid: paid}, nil
}

// Bill totals the table's unpaid orders and adds the service charge, given as
// a percentage of the subtotal.
func (s *TableService) Bill(ctx context.Context, id int64, serviceChargePercent decimal.Decimal) (*Bill, error) {
	store := s.newStore(s.db)

	table, err := store.GetTable(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}

	orders, err := store.ListUnpaidOrdersByTable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list unpaid orders: %w", err)
	}
	results, err := attachItems(ctx, store, orders)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, o := range orders {
		subtotal = subtotal.Add(database.DecimalFromNumeric(o.Total))
	}
	charge := subtotal.Mul(serviceChargePercent).Div(decimal.NewFromInt(100)).Round(2)

	return &Bill{
		Table:                table,
		Orders:               results,
		Subtotal:             subtotal,
		ServiceChargePercent: serviceChargePercent,
		ServiceCharge:        charge,
		Total:                subtotal.Add(charge),
	}, nil
}

func (s *TableService) tableChanged(ctx context.Context, table database.Table) {
	metrics.TableTransition(table.Status)
	s.publisher.Publish(ctx, events.New(events.TableUpdated, table.ID, table))
}

func validPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodPix, enum.PaymentMethodOther:
		return true
	}
	return false
}
