package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Establishment struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Address       pgtype.Text    `json:"address"`
	Cep           pgtype.Text    `json:"cep"`
	TaxID         pgtype.Text    `json:"tax_id"`
	Logo          pgtype.Text    `json:"logo"`
	ServiceCharge pgtype.Numeric `json:"service_charge"`
	ThemeID       pgtype.Int8    `json:"theme_id"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Feedback struct {
	ID          int64       `json:"id"`
	TableNumber int32       `json:"table_number"`
	Rating      int32       `json:"rating"`
	Comment     pgtype.Text `json:"comment"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Order struct {
	ID            int64          `json:"id"`
	TableID       int64          `json:"table_id"`
	Status        string         `json:"status"`
	Total         pgtype.Numeric `json:"total"`
	PaymentMethod pgtype.Text    `json:"payment_method"`
	Timestamp     time.Time      `json:"timestamp"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type OrderItem struct {
	ID          int64          `json:"id"`
	OrderID     int64          `json:"order_id"`
	ProductID   pgtype.Int8    `json:"product_id"`
	Name        string         `json:"name"`
	Quantity    int32          `json:"quantity"`
	Price       pgtype.Numeric `json:"price"`
	Status      string         `json:"status"`
	Observation pgtype.Text    `json:"observation"`
}

type Product struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
	Description pgtype.Text    `json:"description"`
	Image       pgtype.Text    `json:"image"`
	CategoryID  pgtype.Int8    `json:"category_id"`
	IsHighlight bool           `json:"is_highlight"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type RefreshToken struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Table struct {
	ID        int64     `json:"id"`
	Number    int32     `json:"number"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Theme struct {
	ID         int64  `json:"id"`
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
}

type User struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Username  string      `json:"username"`
	Password  string      `json:"password"`
	Role      string      `json:"role"`
	Pin       pgtype.Text `json:"pin"`
	CreatedAt time.Time   `json:"created_at"`
}
