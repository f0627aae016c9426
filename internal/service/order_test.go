package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/events"
)

func int64Ptr(v int64) *int64 { return &v }

func numericEquals(n pgtype.Numeric, expected string) bool {
	return database.DecimalFromNumeric(n).Equal(decimal.RequireFromString(expected))
}

func TestCreateOrder_TotalIsSumOfLines(t *testing.T) {
	store := newMemStore()
	table := store.addTable(100, enum.TableStatusOccupied)
	svc, tx, rec := newTestOrderService(store, false)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: table.ID,
		Items: []CreateOrderItemRequest{
			{ProductID: int64Ptr(1), Name: "Lager", Price: decimal.NewFromInt(28), Quantity: 2},
			{Name: "Fries", Price: decimal.RequireFromString("12.50"), Quantity: 1, Observation: "no salt"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !numericEquals(result.Order.Total, "68.50") {
		t.Errorf("total: got %v, want 68.50", database.DecimalFromNumeric(result.Order.Total))
	}
	if result.Order.Status != enum.OrderStatusPending {
		t.Errorf("status: got %s, want PENDING", result.Order.Status)
	}
	if len(result.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(result.Items))
	}
	if result.Items[1].Observation.String != "no salt" {
		t.Errorf("observation: got %q", result.Items[1].Observation.String)
	}
	if result.Items[0].ProductID.Int64 != 1 || result.Items[1].ProductID.Valid {
		t.Errorf("product ids: got %+v / %+v", result.Items[0].ProductID, result.Items[1].ProductID)
	}
	if !tx.committed {
		t.Error("transaction not committed")
	}
	if got := rec.types(); len(got) != 1 || got[0] != events.OrderCreated {
		t.Errorf("events: got %v, want [order.created]", got)
	}
}

func TestCreateOrder_OccupiesAvailableTable(t *testing.T) {
	store := newMemStore()
	table := store.addTable(3, enum.TableStatusAvailable)
	svc, _, rec := newTestOrderService(store, false)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: table.ID,
		Items:   []CreateOrderItemRequest{{Name: "Water", Price: decimal.NewFromInt(5), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.tables[table.ID].Status != enum.TableStatusOccupied {
		t.Errorf("table status: got %s, want OCCUPIED", store.tables[table.ID].Status)
	}
	got := rec.types()
	if len(got) != 2 || got[1] != events.TableUpdated {
		t.Errorf("events: got %v, want [order.created table.updated]", got)
	}
}

func TestCreateOrder_VerifyPricesUsesProductPrice(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	store.products[1] = database.GetProductForOrderRow{
		ID:    1,
		Name:  "Lager",
		Price: database.NumericFromDecimal(decimal.NewFromInt(28)),
	}
	svc, _, _ := newTestOrderService(store, true)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: table.ID,
		Items: []CreateOrderItemRequest{
			{ProductID: int64Ptr(1), Name: "Cheap Lager", Price: decimal.NewFromInt(1), Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(result.Order.Total, "56.00") {
		t.Errorf("total: got %v, want 56.00", database.DecimalFromNumeric(result.Order.Total))
	}
	if result.Items[0].Name != "Lager" {
		t.Errorf("name: got %q, want product name", result.Items[0].Name)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderRequest{
		TableID: table.ID,
		Items:   []CreateOrderItemRequest{{ProductID: int64Ptr(99), Name: "Ghost", Quantity: 1}},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Errorf("got %v, want ErrProductNotFound", err)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	svc, _, _ := newTestOrderService(store, false)

	tests := []struct {
		name string
		req  CreateOrderRequest
		want error
	}{
		{"no items", CreateOrderRequest{TableID: table.ID}, ErrEmptyItems},
		{"zero quantity", CreateOrderRequest{TableID: table.ID, Items: []CreateOrderItemRequest{{Name: "A", Quantity: 0}}}, ErrInvalidQuantity},
		{"negative price", CreateOrderRequest{TableID: table.ID, Items: []CreateOrderItemRequest{{Name: "A", Quantity: 1, Price: decimal.NewFromInt(-1)}}}, ErrInvalidPrice},
		{"no name", CreateOrderRequest{TableID: table.ID, Items: []CreateOrderItemRequest{{Quantity: 1}}}, ErrItemNameRequired},
		{"unknown table", CreateOrderRequest{TableID: 404, Items: []CreateOrderItemRequest{{Name: "A", Quantity: 1}}}, ErrTableNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetItemStatus_DerivesOrderStatus(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	order := seedOrder(store, table.ID, enum.OrderStatusPending, enum.OrderItemStatusPending, enum.OrderItemStatusPending)
	items, _ := store.ListOrderItemsByOrders(context.Background(), []int64{order.ID})
	svc, _, rec := newTestOrderService(store, false)
	ctx := context.Background()

	result, err := svc.SetItemStatus(ctx, order.ID, items[0].ID, enum.OrderItemStatusDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusPartial {
		t.Errorf("after one: got %s, want PARTIAL", result.Order.Status)
	}

	result, err = svc.SetItemStatus(ctx, order.ID, items[1].ID, enum.OrderItemStatusDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusDelivered {
		t.Errorf("after all: got %s, want DELIVERED", result.Order.Status)
	}
	if store.orders[order.ID].Status != enum.OrderStatusDelivered {
		t.Error("derived status not persisted")
	}

	result, err = svc.SetItemStatus(ctx, order.ID, items[0].ID, enum.OrderItemStatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusPartial {
		t.Errorf("after undo: got %s, want PARTIAL", result.Order.Status)
	}

	got := rec.types()
	if len(got) != 6 {
		t.Errorf("events: got %v, want item+order update per toggle", got)
	}
}

func TestSetItemStatus_PaidStaysPaid(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	order := seedOrder(store, table.ID, enum.OrderStatusPaid, enum.OrderItemStatusDelivered)
	items, _ := store.ListOrderItemsByOrders(context.Background(), []int64{order.ID})
	svc, _, _ := newTestOrderService(store, false)

	result, err := svc.SetItemStatus(context.Background(), order.ID, items[0].ID, enum.OrderItemStatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusPaid {
		t.Errorf("status: got %s, want PAID", result.Order.Status)
	}
}

func TestSetItemStatus_ItemMustBelongToOrder(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	a := seedOrder(store, table.ID, enum.OrderStatusPending, enum.OrderItemStatusPending)
	b := seedOrder(store, table.ID, enum.OrderStatusPending, enum.OrderItemStatusPending)
	bItems, _ := store.ListOrderItemsByOrders(context.Background(), []int64{b.ID})
	svc, _, _ := newTestOrderService(store, false)
	ctx := context.Background()

	if _, err := svc.SetItemStatus(ctx, a.ID, bItems[0].ID, enum.OrderItemStatusDelivered); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("foreign item: got %v, want ErrItemNotFound", err)
	}
	if _, err := svc.SetItemStatus(ctx, 999, bItems[0].ID, enum.OrderItemStatusDelivered); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order: got %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.SetItemStatus(ctx, a.ID, bItems[0].ID, "COOKING"); !errors.Is(err, ErrInvalidItemStatus) {
		t.Errorf("bad status: got %v, want ErrInvalidItemStatus", err)
	}
}

func TestSetOrderStatus(t *testing.T) {
	store := newMemStore()
	table := store.addTable(1, enum.TableStatusOccupied)
	order := seedOrder(store, table.ID, enum.OrderStatusDelivered, enum.OrderItemStatusDelivered)
	svc, _, _ := newTestOrderService(store, false)
	ctx := context.Background()

	result, err := svc.SetOrderStatus(ctx, order.ID, enum.OrderStatusPaid, enum.PaymentMethodCard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.Status != enum.OrderStatusPaid || result.Order.PaymentMethod.String != enum.PaymentMethodCard {
		t.Errorf("got %s/%s, want PAID/CARD", result.Order.Status, result.Order.PaymentMethod.String)
	}
	if len(result.Items) != 1 {
		t.Errorf("items: got %d, want 1", len(result.Items))
	}

	if _, err := svc.SetOrderStatus(ctx, order.ID, "LOST", ""); !errors.Is(err, ErrInvalidOrderStatus) {
		t.Errorf("got %v, want ErrInvalidOrderStatus", err)
	}
	if _, err := svc.SetOrderStatus(ctx, 999, enum.OrderStatusPaid, ""); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("got %v, want ErrOrderNotFound", err)
	}
}

func TestListOrders_CustomerView(t *testing.T) {
	store := newMemStore()
	t1 := store.addTable(1, enum.TableStatusOccupied)
	t2 := store.addTable(2, enum.TableStatusOccupied)
	seedOrder(store, t1.ID, enum.OrderStatusPending, enum.OrderItemStatusPending)
	seedOrder(store, t1.ID, enum.OrderStatusPaid, enum.OrderItemStatusDelivered)
	seedOrder(store, t2.ID, enum.OrderStatusPending, enum.OrderItemStatusPending)
	svc, _, _ := newTestOrderService(store, false)
	ctx := context.Background()

	if _, err := svc.ListOrders(ctx, ListOrdersFilter{}); !errors.Is(err, ErrTableIDRequired) {
		t.Fatalf("anonymous without table: got %v, want ErrTableIDRequired", err)
	}

	orders, err := svc.ListOrders(ctx, ListOrdersFilter{TableID: &t1.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].Order.Status == enum.OrderStatusPaid {
		t.Errorf("customer view: got %d orders, want 1 unpaid", len(orders))
	}
	if len(orders[0].Items) != 1 {
		t.Errorf("items: got %d, want 1", len(orders[0].Items))
	}

	all, err := svc.ListOrders(ctx, ListOrdersFilter{Staff: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("staff view: got %d orders, want 3", len(all))
	}

	paid, _ := svc.ListOrders(ctx, ListOrdersFilter{Staff: true, Status: enum.OrderStatusPaid})
	if len(paid) != 1 {
		t.Errorf("staff PAID filter: got %d, want 1", len(paid))
	}
}

// Example flow: table 100 opened, two lagers ordered, item delivered, table
// freed and order paid.
func TestOrderWorkflow_Scenario(t *testing.T) {
	store := newMemStore()
	tables, _, _ := newTestTableService(store)
	orders, _, _ := newTestOrderService(store, false)
	ctx := context.Background()

	table, err := tables.CreateTable(ctx, 100, enum.TableStatusOccupied)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	created, err := orders.CreateOrder(ctx, CreateOrderRequest{
		TableID: table.ID,
		Items:   []CreateOrderItemRequest{{ProductID: int64Ptr(1), Name: "Lager", Price: decimal.NewFromInt(28), Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := database.DecimalFromNumeric(created.Order.Total).StringFixed(2); got != "56.00" {
		t.Fatalf("total: got %s, want 56.00", got)
	}

	delivered, err := orders.SetItemStatus(ctx, created.Order.ID, created.Items[0].ID, enum.OrderItemStatusDelivered)
	if err != nil {
		t.Fatalf("deliver item: %v", err)
	}
	if delivered.Order.Status != enum.OrderStatusDelivered {
		t.Fatalf("order status: got %s, want DELIVERED", delivered.Order.Status)
	}

	if _, err := tables.UpdateStatus(ctx, table.ID, enum.TableStatusAvailable); err != nil {
		t.Fatalf("free table: %v", err)
	}
	paid, err := orders.SetOrderStatus(ctx, created.Order.ID, enum.OrderStatusPaid, "")
	if err != nil {
		t.Fatalf("pay order: %v", err)
	}
	if paid.Order.Status != enum.OrderStatusPaid || store.tables[table.ID].Status != enum.TableStatusAvailable {
		t.Errorf("final state: order %s table %s", paid.Order.Status, store.tables[table.ID].Status)
	}
}
