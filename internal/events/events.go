// Package events fans table and order changes out to live consumers: the
// websocket hub for floor devices and, when configured, a RabbitMQ exchange
// for kitchen and notification services.
package events

import (
	"context"
	"time"
)

type Type string

const (
	TableUpdated     Type = "table.updated"
	TableClosed      Type = "table.closed"
	OrderCreated     Type = "order.created"
	OrderUpdated     Type = "order.updated"
	OrderItemUpdated Type = "order_item.updated"
)

type Event struct {
	Type    Type      `json:"type"`
	TableID int64     `json:"tableId"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// New stamps an event with the current time.
func New(t Type, tableID int64, payload any) Event {
	return Event{Type: t, TableID: tableID, Payload: payload, At: time.Now().UTC()}
}

// Publisher delivers events. Implementations log delivery failures rather
// than returning them; a committed change is never rolled back because a
// consumer is unreachable.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Multi publishes to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		p.Publish(ctx, e)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
