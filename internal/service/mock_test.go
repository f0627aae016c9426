package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/events"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.committed = m.commitErr == nil
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockDB implements DB. Statements always go through the store factory, so
// the DBTX methods are never called.
type mockDB struct {
	tx  *mockTx
	err error
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}
func (m *mockDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// memStore is an in-memory TableStore and OrderStore.
type memStore struct {
	nextID   int64
	tables   map[int64]database.Table
	orders   map[int64]database.Order
	items    map[int64]database.OrderItem
	products map[int64]database.GetProductForOrderRow

	createTableErr error
	// lostInsertRace makes the next CreateTable behave as if another
	// transaction committed the same number first.
	lostInsertRace bool
}

func newMemStore() *memStore {
	return &memStore{
		tables:   make(map[int64]database.Table),
		orders:   make(map[int64]database.Order),
		items:    make(map[int64]database.OrderItem),
		products: make(map[int64]database.GetProductForOrderRow),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addTable(number int32, status string) database.Table {
	t := database.Table{ID: m.id(), Number: number, Status: status, CreatedAt: time.Now()}
	m.tables[t.ID] = t
	return t
}

func (m *memStore) GetTable(ctx context.Context, id int64) (database.Table, error) {
	t, ok := m.tables[id]
	if !ok {
		return database.Table{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *memStore) GetTableForUpdate(ctx context.Context, id int64) (database.Table, error) {
	return m.GetTable(ctx, id)
}

func (m *memStore) GetTableByNumberForUpdate(ctx context.Context, number int32) (database.Table, error) {
	for _, t := range m.tables {
		if t.Number == number {
			return t, nil
		}
	}
	return database.Table{}, pgx.ErrNoRows
}

func (m *memStore) CreateTable(ctx context.Context, arg database.CreateTableParams) (database.Table, error) {
	if m.createTableErr != nil {
		return database.Table{}, m.createTableErr
	}
	if m.lostInsertRace {
		m.lostInsertRace = false
		m.addTable(arg.Number, enum.TableStatusOccupied)
		return database.Table{}, &pgconn.PgError{Code: "23505", ConstraintName: "tables_number_key"}
	}
	for _, t := range m.tables {
		if t.Number == arg.Number {
			return database.Table{}, &pgconn.PgError{Code: "23505", ConstraintName: "tables_number_key"}
		}
	}
	return m.addTable(arg.Number, arg.Status), nil
}

func (m *memStore) UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.Table, error) {
	t, ok := m.tables[arg.ID]
	if !ok {
		return database.Table{}, pgx.ErrNoRows
	}
	t.Status = arg.Status
	m.tables[t.ID] = t
	return t, nil
}

func (m *memStore) CountPendingItemsByTable(ctx context.Context, tableID int64) (int64, error) {
	var n int64
	for _, it := range m.items {
		o := m.orders[it.OrderID]
		if o.TableID == tableID && o.Status != enum.OrderStatusPaid && it.Status == enum.OrderItemStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkTableOrdersPaid(ctx context.Context, arg database.MarkTableOrdersPaidParams) ([]database.Order, error) {
	var out []database.Order
	for _, o := range m.sortedOrders() {
		if o.TableID == arg.TableID && o.Status != enum.OrderStatusPaid {
			o.Status = enum.OrderStatusPaid
			if arg.PaymentMethod.Valid {
				o.PaymentMethod = arg.PaymentMethod
			}
			m.orders[o.ID] = o
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListUnpaidOrdersByTable(ctx context.Context, tableID int64) ([]database.Order, error) {
	var out []database.Order
	for _, o := range m.sortedOrders() {
		if o.TableID == tableID && o.Status != enum.OrderStatusPaid {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListOrderItemsByOrders(ctx context.Context, orderIDs []int64) ([]database.OrderItem, error) {
	want := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}
	out := []database.OrderItem{}
	for _, it := range m.sortedItems() {
		if want[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) GetProductForOrder(ctx context.Context, id int64) (database.GetProductForOrderRow, error) {
	p, ok := m.products[id]
	if !ok {
		return database.GetProductForOrderRow{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	o := database.Order{
		ID:            m.id(),
		TableID:       arg.TableID,
		Status:        arg.Status,
		Total:         arg.Total,
		PaymentMethod: arg.PaymentMethod,
		Timestamp:     time.Now(),
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	it := database.OrderItem{
		ID:          m.id(),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		Name:        arg.Name,
		Quantity:    arg.Quantity,
		Price:       arg.Price,
		Status:      arg.Status,
		Observation: arg.Observation,
	}
	m.items[it.ID] = it
	return it, nil
}

func (m *memStore) GetOrder(ctx context.Context, id int64) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	out := []database.Order{}
	for _, o := range m.sortedOrders() {
		if arg.TableID.Valid && o.TableID != arg.TableID.Int64 {
			continue
		}
		if arg.Status.Valid && o.Status != arg.Status.String {
			continue
		}
		if arg.ExcludePaid && o.Status == enum.OrderStatusPaid {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	if arg.PaymentMethod.Valid {
		o.PaymentMethod = arg.PaymentMethod
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error) {
	it, ok := m.items[arg.ID]
	if !ok || it.OrderID != arg.OrderID {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	it.Status = arg.Status
	m.items[it.ID] = it
	return it, nil
}

func (m *memStore) ListItemStatusesByOrder(ctx context.Context, orderID int64) ([]string, error) {
	out := []string{}
	for _, it := range m.sortedItems() {
		if it.OrderID == orderID {
			out = append(out, it.Status)
		}
	}
	return out, nil
}

func (m *memStore) sortedOrders() []database.Order {
	out := make([]database.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) sortedItems() []database.OrderItem {
	out := make([]database.OrderItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Test helpers ---

func newTestTableService(store *memStore) (*TableService, *mockTx, *recorder) {
	tx := &mockTx{}
	rec := &recorder{}
	newStore := func(db database.DBTX) TableStore { return store }
	return NewTableService(&mockDB{tx: tx}, newStore, rec), tx, rec
}

func newTestOrderService(store *memStore, verify bool) (*OrderService, *mockTx, *recorder) {
	tx := &mockTx{}
	rec := &recorder{}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(&mockDB{tx: tx}, newStore, rec, verify), tx, rec
}
