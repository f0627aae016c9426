package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/fulfillment"
)

var (
	// ErrQueued reports that the mutation was applied locally and queued
	// because the API could not be reached.
	ErrQueued = errors.New("queued for retry")
	// ErrNotSynced is returned for changes to an order that exists only
	// locally.
	ErrNotSynced = errors.New("order not yet synced")
)

// Store is the device's single cache of restaurant state. Sync replaces
// collections wholesale; the last fetch wins.
type Store struct {
	client *Client
	outbox *Outbox
	// tableID scopes order listing for devices without a staff session.
	tableID int64

	mu            sync.RWMutex
	tables        []Table
	orders        []Order
	products      []Product
	categories    []Category
	feedbacks     []Feedback
	establishment *Establishment
	nextLocalID   int64
	syncedAt      time.Time
}

type StoreOption func(*Store)

// ForTable limits order sync to one table, as a table device does.
func ForTable(tableID int64) StoreOption {
	return func(s *Store) { s.tableID = tableID }
}

func NewStore(c *Client, o *Outbox, opts ...StoreOption) *Store {
	s := &Store{client: c, outbox: o}
	for _, opt := range opts {
		opt(s)
	}
	// Restored ops may already hold local order ids.
	for _, op := range o.Pending() {
		if op.OrderID < s.nextLocalID {
			s.nextLocalID = op.OrderID
		}
	}
	return s
}

// =============================================================================
// Reads
// =============================================================================

func (s *Store) Tables() []Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Table(nil), s.tables...)
}

func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = cloneOrder(o)
	}
	return out
}

func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Product(nil), s.products...)
}

func (s *Store) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Category(nil), s.categories...)
}

func (s *Store) Feedbacks() []Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Feedback(nil), s.feedbacks...)
}

func (s *Store) Establishment() (Establishment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.establishment == nil {
		return Establishment{}, false
	}
	return *s.establishment, true
}

func (s *Store) Table(id int64) (Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.tableIndex(id); i >= 0 {
		return s.tables[i], true
	}
	return Table{}, false
}

func (s *Store) Order(id int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.orderIndex(id); i >= 0 {
		return cloneOrder(s.orders[i]), true
	}
	return Order{}, false
}

func (s *Store) SyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncedAt
}

// =============================================================================
// Sync
// =============================================================================

// Sync refetches every collection concurrently, replaces the cache and
// re-applies the ops still waiting in the outbox.
func (s *Store) Sync(ctx context.Context) error {
	var (
		tables        []Table
		orders        []Order
		products      []Product
		categories    []Category
		feedbacks     []Feedback
		establishment Establishment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tables, err = s.client.ListTables(gctx)
		return wrap("tables", err)
	})
	g.Go(func() (err error) {
		orders, err = s.client.ListOrders(gctx, ListOrdersOptions{TableID: s.tableID})
		return wrap("orders", err)
	})
	g.Go(func() (err error) {
		products, err = s.client.ListProducts(gctx)
		return wrap("products", err)
	})
	g.Go(func() (err error) {
		categories, err = s.client.ListCategories(gctx)
		return wrap("categories", err)
	})
	g.Go(func() (err error) {
		feedbacks, err = s.client.ListFeedbacks(gctx)
		return wrap("feedbacks", err)
	})
	g.Go(func() (err error) {
		establishment, err = s.client.GetEstablishment(gctx)
		return wrap("establishment", err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = tables
	s.orders = orders
	s.products = products
	s.categories = categories
	s.feedbacks = feedbacks
	s.establishment = &establishment
	s.syncedAt = time.Now()

	for _, op := range s.outbox.Pending() {
		s.applyLocked(op)
	}
	return nil
}

// Flush replays the outbox and, when anything was sent or dropped,
// refetches so the cache reflects the server again.
func (s *Store) Flush(ctx context.Context) (FlushResult, error) {
	res, err := s.outbox.Flush(ctx, s.send)
	for _, d := range res.Dropped {
		zap.L().Warn("outbox op refused",
			zap.String("op", string(d.Op.Kind)),
			zap.String("id", d.Op.ID.String()),
			zap.Error(d.Err),
		)
	}
	if err != nil {
		return res, err
	}
	if res.Sent > 0 || len(res.Dropped) > 0 {
		if err := s.Sync(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Store) send(ctx context.Context, op Op) error {
	var err error
	switch op.Kind {
	case OpTableStatus:
		_, err = s.client.SetTableStatus(ctx, op.TableID, op.Status)
	case OpOrderStatus:
		_, err = s.client.SetOrderStatus(ctx, op.OrderID, op.Status, op.PaymentMethod)
	case OpItemStatus:
		_, err = s.client.SetItemStatus(ctx, op.OrderID, op.ItemID, op.Status)
	case OpCloseTable:
		_, err = s.client.CloseTable(ctx, op.TableID, op.PaymentMethod)
	case OpCreateOrder:
		_, err = s.client.CreateOrder(ctx, op.TableID, op.Items)
	default:
		err = fmt.Errorf("unknown op kind %q", op.Kind)
	}
	return err
}

// =============================================================================
// Mutations
// =============================================================================

// OpenTable needs the server to assign the table, so it is never queued.
func (s *Store) OpenTable(ctx context.Context, number int32) (Table, error) {
	t, err := s.client.OpenTable(ctx, number)
	if err != nil {
		return Table{}, err
	}
	s.mu.Lock()
	s.putTableLocked(t)
	s.mu.Unlock()
	return t, nil
}

func (s *Store) SetTableStatus(ctx context.Context, id int64, status string) error {
	t, err := s.client.SetTableStatus(ctx, id, status)
	if err == nil {
		s.mu.Lock()
		s.putTableLocked(t)
		s.mu.Unlock()
		return nil
	}
	return s.queue(err, Op{Kind: OpTableStatus, TableID: id, Status: status})
}

func (s *Store) SetOrderStatus(ctx context.Context, id int64, status, paymentMethod string) error {
	if id < 0 {
		return ErrNotSynced
	}
	o, err := s.client.SetOrderStatus(ctx, id, status, paymentMethod)
	if err == nil {
		s.mu.Lock()
		s.putOrderLocked(o)
		s.mu.Unlock()
		return nil
	}
	return s.queue(err, Op{Kind: OpOrderStatus, OrderID: id, Status: status, PaymentMethod: paymentMethod})
}

// SetItemStatus toggles an item. Offline, the order status is derived
// locally with the same rule the server applies.
func (s *Store) SetItemStatus(ctx context.Context, orderID, itemID int64, status string) error {
	if orderID < 0 {
		return ErrNotSynced
	}
	o, err := s.client.SetItemStatus(ctx, orderID, itemID, status)
	if err == nil {
		s.mu.Lock()
		s.putOrderLocked(o)
		s.mu.Unlock()
		return nil
	}
	return s.queue(err, Op{Kind: OpItemStatus, OrderID: orderID, ItemID: itemID, Status: status})
}

// CloseTable settles the table. Offline, the local check for undelivered
// items runs first so a doomed close is not queued.
func (s *Store) CloseTable(ctx context.Context, id int64, paymentMethod string) error {
	res, err := s.client.CloseTable(ctx, id, paymentMethod)
	if err == nil {
		s.mu.Lock()
		s.putTableLocked(res.Table)
		s.payTableLocked(id, paymentMethod, false)
		s.mu.Unlock()
		return nil
	}
	if Retryable(err) && s.hasUndelivered(id) {
		return fmt.Errorf("table %d has undelivered items", id)
	}
	return s.queue(err, Op{Kind: OpCloseTable, TableID: id, PaymentMethod: paymentMethod})
}

// CreateOrder places an order. Offline, the order is kept locally under a
// negative id until the outbox delivers it.
func (s *Store) CreateOrder(ctx context.Context, tableID int64, items []NewOrderItem) (Order, error) {
	o, err := s.client.CreateOrder(ctx, tableID, items)
	if err == nil {
		s.mu.Lock()
		s.putOrderLocked(o)
		s.occupyLocked(tableID, false)
		s.mu.Unlock()
		return o, nil
	}
	if !Retryable(err) {
		return Order{}, err
	}

	s.mu.Lock()
	s.nextLocalID--
	localID := s.nextLocalID
	s.mu.Unlock()

	qerr := s.queue(err, Op{Kind: OpCreateOrder, TableID: tableID, OrderID: localID, Items: items})
	local, _ := s.Order(localID)
	return local, qerr
}

// queue applies op locally and enqueues it when err is transient;
// otherwise it returns err unchanged.
func (s *Store) queue(err error, op Op) error {
	if !Retryable(err) {
		return err
	}
	op = s.outbox.Enqueue(op)

	s.mu.Lock()
	s.applyLocked(op)
	s.mu.Unlock()

	zap.L().Info("api unreachable, change queued",
		zap.String("op", string(op.Kind)),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %v", ErrQueued, err)
}

// =============================================================================
// Local state
// =============================================================================

// applyLocked mirrors op onto the cache and marks what it touched pending.
func (s *Store) applyLocked(op Op) {
	switch op.Kind {
	case OpTableStatus:
		if i := s.tableIndex(op.TableID); i >= 0 {
			s.tables[i].Status = op.Status
			s.tables[i].Pending = true
		}
	case OpOrderStatus:
		if i := s.orderIndex(op.OrderID); i >= 0 {
			s.orders[i].Status = op.Status
			if op.PaymentMethod != "" {
				pm := op.PaymentMethod
				s.orders[i].PaymentMethod = &pm
			}
			s.orders[i].Pending = true
		}
	case OpItemStatus:
		i := s.orderIndex(op.OrderID)
		if i < 0 {
			return
		}
		o := &s.orders[i]
		statuses := make([]string, len(o.Items))
		for j := range o.Items {
			if o.Items[j].ID == op.ItemID {
				o.Items[j].Status = op.Status
			}
			statuses[j] = o.Items[j].Status
		}
		o.Status = fulfillment.Apply(o.Status, fulfillment.Derive(statuses))
		o.Pending = true
	case OpCloseTable:
		s.payTableLocked(op.TableID, op.PaymentMethod, true)
		if i := s.tableIndex(op.TableID); i >= 0 {
			s.tables[i].Status = enum.TableStatusAvailable
			s.tables[i].Pending = true
		}
	case OpCreateOrder:
		if s.orderIndex(op.OrderID) >= 0 {
			return
		}
		s.orders = append(s.orders, localOrder(op))
		s.occupyLocked(op.TableID, true)
	}
}

func localOrder(op Op) Order {
	o := Order{
		ID:        op.OrderID,
		TableID:   op.TableID,
		Status:    enum.OrderStatusPending,
		Total:     decimal.Zero,
		Timestamp: op.QueuedAt,
		Pending:   true,
	}
	for i, it := range op.Items {
		item := OrderItem{
			ID:        op.OrderID*100 - int64(i),
			OrderID:   op.OrderID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Status:    enum.OrderItemStatusPending,
		}
		if it.Observation != "" {
			obs := it.Observation
			item.Observation = &obs
		}
		o.Items = append(o.Items, item)
		o.Total = o.Total.Add(it.Price.Mul(decimal.NewFromInt32(it.Quantity)))
	}
	return o
}

func (s *Store) payTableLocked(tableID int64, paymentMethod string, pending bool) {
	for i := range s.orders {
		o := &s.orders[i]
		if o.TableID != tableID || o.Status == enum.OrderStatusPaid {
			continue
		}
		o.Status = enum.OrderStatusPaid
		if paymentMethod != "" {
			pm := paymentMethod
			o.PaymentMethod = &pm
		}
		o.Pending = o.Pending || pending
	}
}

func (s *Store) occupyLocked(tableID int64, pending bool) {
	if i := s.tableIndex(tableID); i >= 0 && s.tables[i].Status == enum.TableStatusAvailable {
		s.tables[i].Status = enum.TableStatusOccupied
		s.tables[i].Pending = s.tables[i].Pending || pending
	}
}

func (s *Store) hasUndelivered(tableID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.TableID != tableID || o.Status == enum.OrderStatusPaid {
			continue
		}
		for _, it := range o.Items {
			if it.Status == enum.OrderItemStatusPending {
				return true
			}
		}
	}
	return false
}

func (s *Store) putTableLocked(t Table) {
	if i := s.tableIndex(t.ID); i >= 0 {
		s.tables[i] = t
		return
	}
	s.tables = append(s.tables, t)
	sort.Slice(s.tables, func(a, b int) bool { return s.tables[a].Number < s.tables[b].Number })
}

func (s *Store) putOrderLocked(o Order) {
	if i := s.orderIndex(o.ID); i >= 0 {
		s.orders[i] = o
		return
	}
	s.orders = append(s.orders, o)
}

func (s *Store) tableIndex(id int64) int {
	for i := range s.tables {
		if s.tables[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) orderIndex(id int64) int {
	for i := range s.orders {
		if s.orders[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sync %s: %w", what, err)
}
