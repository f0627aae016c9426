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
	"github.com/mesa-digital/api/internal/fulfillment"
	"github.com/mesa-digital/api/internal/metrics"
)

// Errors returned by the order service.
var (
	ErrEmptyItems         = errors.New("items are required")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidPrice       = errors.New("price must be >= 0")
	ErrItemNameRequired   = errors.New("item name is required")
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrInvalidItemStatus  = errors.New("status must be PENDING or DELIVERED")
	ErrItemNotFound       = errors.New("item not found in order")
	ErrTableIDRequired    = errors.New("tableId is required")
)

// OrderStore defines the DB methods needed by the order workflows.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetTableForUpdate(ctx context.Context, id int64) (database.Table, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.Table, error)
	GetProductForOrder(ctx context.Context, id int64) (database.GetProductForOrderRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, id int64) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	ListItemStatusesByOrder(ctx context.Context, orderID int64) ([]string, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []int64) ([]database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	TableID int64
	Items   []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line of the order. ProductID is optional;
// Name and Price are the snapshot stored on the item.
type CreateOrderItemRequest struct {
	ProductID   *int64
	Name        string
	Price       decimal.Decimal
	Quantity    int32
	Observation string
}

// ListOrdersFilter selects orders. Staff see every order; everyone else must
// name a table and never sees PAID orders.
type ListOrdersFilter struct {
	TableID *int64
	Status  string
	Staff   bool
}

// OrderResult is an order with its items.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order business logic.
type OrderService struct {
	db           DB
	newStore     NewOrderStore
	publisher    events.Publisher
	verifyPrices bool
}

// NewOrderService creates a new OrderService. With verifyPrices set, items
// that reference a product are charged the product's current price.
func NewOrderService(db DB, newStore NewOrderStore, publisher events.Publisher, verifyPrices bool) *OrderService {
	return &OrderService{db: db, newStore: newStore, publisher: publisher, verifyPrices: verifyPrices}
}

// CreateOrder persists an order and its items in one transaction. The total
// is computed here from the item lines; a client-supplied total is never used.
// An AVAILABLE table becomes OCCUPIED.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if item.Price.IsNegative() {
			return nil, ErrInvalidPrice
		}
		if item.Name == "" && item.ProductID == nil {
			return nil, ErrItemNameRequired
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	table, err := store.GetTableForUpdate(ctx, req.TableID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}

	// --- Resolve item snapshots and total ---
	lines := make([]database.CreateOrderItemParams, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		name, price := item.Name, item.Price
		if item.ProductID != nil && (s.verifyPrices || name == "") {
			product, err := store.GetProductForOrder(ctx, *item.ProductID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrProductNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("get product %d: %w", *item.ProductID, err)
			}
			if name == "" || s.verifyPrices {
				name = product.Name
			}
			if s.verifyPrices {
				price = database.DecimalFromNumeric(product.Price)
			}
		}
		price = price.Round(2)
		total = total.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))
		lines[i] = database.CreateOrderItemParams{
			ProductID:   database.Int8(item.ProductID),
			Name:        name,
			Quantity:    item.Quantity,
			Price:       database.NumericFromDecimal(price),
			Status:      enum.OrderItemStatusPending,
			Observation: database.Text(item.Observation),
		}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		TableID: table.ID,
		Status:  enum.OrderStatusPending,
		Total:   database.NumericFromDecimal(total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, len(lines))
	for i, line := range lines {
		line.OrderID = order.ID
		items[i], err = store.CreateOrderItem(ctx, line)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
	}

	tableOpened := false
	if table.Status == enum.TableStatusAvailable {
		table, err = store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
			ID:     table.ID,
			Status: enum.TableStatusOccupied,
		})
		if err != nil {
			return nil, fmt.Errorf("occupy table: %w", err)
		}
		tableOpened = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &OrderResult{Order: order, Items: items}
	metrics.OrderCreated()
	s.publisher.Publish(ctx, events.New(events.OrderCreated, table.ID, result))
	if tableOpened {
		metrics.TableTransition(table.Status)
		s.publisher.Publish(ctx, events.New(events.TableUpdated, table.ID, table))
	}
	return result, nil
}

// SetOrderStatus overwrites the order status, typically to mark it PAID.
// An empty paymentMethod leaves the stored one unchanged.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID int64, status, paymentMethod string) (*OrderResult, error) {
	if !enum.ValidOrderStatus(status) {
		return nil, ErrInvalidOrderStatus
	}
	if paymentMethod != "" && !validPaymentMethod(paymentMethod) {
		return nil, ErrInvalidPayment
	}

	store := s.newStore(s.db)
	order, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            orderID,
		Status:        status,
		PaymentMethod: database.Text(paymentMethod),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	items, err := store.ListOrderItemsByOrders(ctx, []int64{order.ID})
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	result := &OrderResult{Order: order, Items: items}
	s.publisher.Publish(ctx, events.New(events.OrderUpdated, order.TableID, result))
	return result, nil
}

// SetItemStatus toggles one item and re-derives the order status in the same
// transaction, with the order row locked so concurrent toggles serialize.
func (s *OrderService) SetItemStatus(ctx context.Context, orderID, itemID int64, status string) (*OrderResult, error) {
	if !enum.ValidOrderItemStatus(status) {
		return nil, ErrInvalidItemStatus
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	item, err := store.UpdateOrderItemStatus(ctx, database.UpdateOrderItemStatusParams{
		ID:      itemID,
		OrderID: orderID,
		Status:  status,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update item status: %w", err)
	}

	statuses, err := store.ListItemStatusesByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list item statuses: %w", err)
	}

	orderChanged := false
	if next := fulfillment.Apply(order.Status, fulfillment.Derive(statuses)); next != order.Status {
		order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:     orderID,
			Status: next,
		})
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}
		orderChanged = true
	}

	items, err := store.ListOrderItemsByOrders(ctx, []int64{orderID})
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if status == enum.OrderItemStatusDelivered {
		metrics.ItemDelivered()
	}
	result := &OrderResult{Order: order, Items: items}
	s.publisher.Publish(ctx, events.New(events.OrderItemUpdated, order.TableID, item))
	if orderChanged {
		s.publisher.Publish(ctx, events.New(events.OrderUpdated, order.TableID, result))
	}
	return result, nil
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*OrderResult, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrder(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := store.ListOrderItemsByOrders(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// ListOrders returns orders newest first, each with its items.
func (s *OrderService) ListOrders(ctx context.Context, filter ListOrdersFilter) ([]OrderResult, error) {
	params := database.ListOrdersParams{
		TableID: database.Int8(filter.TableID),
		Status:  database.Text(filter.Status),
	}
	if filter.Status != "" && !enum.ValidOrderStatus(filter.Status) {
		return nil, ErrInvalidOrderStatus
	}
	if !filter.Staff {
		if filter.TableID == nil {
			return nil, ErrTableIDRequired
		}
		params.ExcludePaid = true
	}

	store := s.newStore(s.db)
	orders, err := store.ListOrders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return attachItems(ctx, store, orders)
}

type orderItemLister interface {
	ListOrderItemsByOrders(ctx context.Context, orderIDs []int64) ([]database.OrderItem, error)
}

// attachItems loads the items of all orders in one query and groups them.
func attachItems(ctx context.Context, store orderItemLister, orders []database.Order) ([]OrderResult, error) {
	results := make([]OrderResult, len(orders))
	if len(orders) == 0 {
		return results, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := store.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	byOrder := make(map[int64][]database.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i, o := range orders {
		results[i] = OrderResult{Order: o, Items: byOrder[o.ID]}
		if results[i].Items == nil {
			results[i].Items = []database.OrderItem{}
		}
	}
	return results, nil
}

var (
	_ OrderStore = (*database.Queries)(nil)
	_ TableStore = (*database.Queries)(nil)
)
