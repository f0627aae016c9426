package enum

// ── State machines (CHECK constrained in DB) ──

const (
	TableStatusAvailable     = "AVAILABLE"
	TableStatusOccupied      = "OCCUPIED"
	TableStatusCallingWaiter = "CALLING_WAITER"
	TableStatusBillRequested = "BILL_REQUESTED"
)

const (
	OrderStatusPending   = "PENDING"
	OrderStatusPartial   = "PARTIAL"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusPaid      = "PAID"
)

const (
	OrderItemStatusPending   = "PENDING"
	OrderItemStatusDelivered = "DELIVERED"
)

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin    = "admin"
	UserRoleWaiter   = "waiter"
	UserRoleCustomer = "customer"
)

// ── Application-only ──

const (
	PaymentMethodCash  = "CASH"
	PaymentMethodCard  = "CARD"
	PaymentMethodPix   = "PIX"
	PaymentMethodOther = "OTHER"
)

// DefaultCategory receives the products of a deleted category.
const DefaultCategory = "Geral"

func ValidTableStatus(s string) bool {
	switch s {
	case TableStatusAvailable, TableStatusOccupied, TableStatusCallingWaiter, TableStatusBillRequested:
		return true
	}
	return false
}

func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPartial, OrderStatusDelivered, OrderStatusPaid:
		return true
	}
	return false
}

func ValidOrderItemStatus(s string) bool {
	return s == OrderItemStatusPending || s == OrderItemStatusDelivered
}

func ValidRole(s string) bool {
	switch s {
	case UserRoleAdmin, UserRoleWaiter, UserRoleCustomer:
		return true
	}
	return false
}

// IsStaff reports whether the role may manage tables and orders.
func IsStaff(role string) bool {
	return role == UserRoleAdmin || role == UserRoleWaiter
}
