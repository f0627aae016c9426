// Package fulfillment derives an order's status from the statuses of its items.
// The same rule runs on the server, inside the item-update transaction, and in
// the floor client's local cache.
package fulfillment

import "github.com/mesa-digital/api/internal/enum"

// Derive returns DELIVERED when every item is delivered, PARTIAL when some
// are, and PENDING when none are or the list is empty.
func Derive(itemStatuses []string) string {
	delivered := 0
	for _, s := range itemStatuses {
		if s == enum.OrderItemStatusDelivered {
			delivered++
		}
	}
	switch {
	case delivered == 0:
		return enum.OrderStatusPending
	case delivered == len(itemStatuses):
		return enum.OrderStatusDelivered
	default:
		return enum.OrderStatusPartial
	}
}

// Apply merges a derived status into the current one. A PAID order stays PAID.
func Apply(current, derived string) string {
	if current == enum.OrderStatusPaid {
		return current
	}
	return derived
}
