package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Entities
// =============================================================================

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Table struct {
	ID        int64     `json:"id"`
	Number    int32     `json:"number"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Pending marks a local change not yet accepted by the server.
	Pending bool `json:"-"`
}

type Order struct {
	ID            int64           `json:"id"`
	TableID       int64           `json:"tableId"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod *string         `json:"paymentMethod"`
	Timestamp     time.Time       `json:"timestamp"`
	Items         []OrderItem     `json:"items"`

	Pending bool `json:"-"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   *int64          `json:"productId"`
	Name        string          `json:"name"`
	Quantity    int32           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	Observation *string         `json:"observation"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description *string         `json:"description"`
	Image       *string         `json:"image"`
	CategoryID  *int64          `json:"categoryId"`
	Category    string          `json:"category"`
	IsHighlight bool            `json:"isHighlight"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Feedback struct {
	ID          int64     `json:"id"`
	TableNumber int32     `json:"tableNumber"`
	Rating      int32     `json:"rating"`
	Comment     *string   `json:"comment"`
	Timestamp   time.Time `json:"timestamp"`
}

type Theme struct {
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
}

type Establishment struct {
	Name          string          `json:"name"`
	Address       *string         `json:"address"`
	Cep           *string         `json:"cep"`
	TaxID         *string         `json:"taxId"`
	Logo          *string         `json:"logo"`
	ServiceCharge decimal.Decimal `json:"serviceCharge"`
	Theme         Theme           `json:"theme"`
}

// =============================================================================
// Request/Response Types
// =============================================================================

// NewOrderItem is one line of an order being placed.
type NewOrderItem struct {
	ProductID   *int64          `json:"productId,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
	Observation string          `json:"observation,omitempty"`
}

type CloseResult struct {
	Table      Table `json:"table"`
	PaidOrders int   `json:"paidOrders"`
}

type Bill struct {
	Table                Table           `json:"table"`
	Orders               []Order         `json:"orders"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	ServiceChargePercent decimal.Decimal `json:"serviceChargePercent"`
	ServiceCharge        decimal.Decimal `json:"serviceCharge"`
	Total                decimal.Decimal `json:"total"`
}

// ListOrdersOptions narrows GET /api/orders. Callers without a staff
// session must set TableID.
type ListOrdersOptions struct {
	TableID int64
	Status  string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

type statusRequest struct {
	Status        string `json:"status"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}
