package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const createEstablishment = `-- name: CreateEstablishment :one
INSERT INTO establishments (name, address, cep, tax_id, logo, service_charge, theme_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, name, address, cep, tax_id, logo, service_charge, theme_id, updated_at
`

type CreateEstablishmentParams struct {
	Name          string         `json:"name"`
	Address       pgtype.Text    `json:"address"`
	Cep           pgtype.Text    `json:"cep"`
	TaxID         pgtype.Text    `json:"tax_id"`
	Logo          pgtype.Text    `json:"logo"`
	ServiceCharge pgtype.Numeric `json:"service_charge"`
	ThemeID       pgtype.Int8    `json:"theme_id"`
}

func (q *Queries) CreateEstablishment(ctx context.Context, arg CreateEstablishmentParams) (Establishment, error) {
	row := q.db.QueryRow(ctx, createEstablishment,
		arg.Name,
		arg.Address,
		arg.Cep,
		arg.TaxID,
		arg.Logo,
		arg.ServiceCharge,
		arg.ThemeID,
	)
	var i Establishment
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Address,
		&i.Cep,
		&i.TaxID,
		&i.Logo,
		&i.ServiceCharge,
		&i.ThemeID,
		&i.UpdatedAt,
	)
	return i, err
}

const createTheme = `-- name: CreateTheme :one
INSERT INTO themes (background, card, text, "primary", accent)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, background, card, text, "primary", accent
`

type CreateThemeParams struct {
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
}

func (q *Queries) CreateTheme(ctx context.Context, arg CreateThemeParams) (Theme, error) {
	row := q.db.QueryRow(ctx, createTheme,
		arg.Background,
		arg.Card,
		arg.Text,
		arg.Primary,
		arg.Accent,
	)
	var i Theme
	err := row.Scan(
		&i.ID,
		&i.Background,
		&i.Card,
		&i.Text,
		&i.Primary,
		&i.Accent,
	)
	return i, err
}

const getEstablishment = `-- name: GetEstablishment :one
SELECT e.id, e.name, e.address, e.cep, e.tax_id, e.logo, e.service_charge, e.theme_id, e.updated_at,
       t.background, t.card, t.text, t."primary", t.accent
FROM establishments e
LEFT JOIN themes t ON t.id = e.theme_id
ORDER BY e.id
LIMIT 1
`

type GetEstablishmentRow struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Address         pgtype.Text    `json:"address"`
	Cep             pgtype.Text    `json:"cep"`
	TaxID           pgtype.Text    `json:"tax_id"`
	Logo            pgtype.Text    `json:"logo"`
	ServiceCharge   pgtype.Numeric `json:"service_charge"`
	ThemeID         pgtype.Int8    `json:"theme_id"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ThemeBackground pgtype.Text    `json:"theme_background"`
	ThemeCard       pgtype.Text    `json:"theme_card"`
	ThemeText       pgtype.Text    `json:"theme_text"`
	ThemePrimary    pgtype.Text    `json:"theme_primary"`
	ThemeAccent     pgtype.Text    `json:"theme_accent"`
}

// GetEstablishment returns the singleton establishment with its theme.
func (q *Queries) GetEstablishment(ctx context.Context) (GetEstablishmentRow, error) {
	row := q.db.QueryRow(ctx, getEstablishment)
	var i GetEstablishmentRow
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Address,
		&i.Cep,
		&i.TaxID,
		&i.Logo,
		&i.ServiceCharge,
		&i.ThemeID,
		&i.UpdatedAt,
		&i.ThemeBackground,
		&i.ThemeCard,
		&i.ThemeText,
		&i.ThemePrimary,
		&i.ThemeAccent,
	)
	return i, err
}

const updateEstablishment = `-- name: UpdateEstablishment :one
UPDATE establishments
SET name = $2, address = $3, cep = $4, tax_id = $5, logo = $6, service_charge = $7,
    theme_id = $8, updated_at = now()
WHERE id = $1
RETURNING id, name, address, cep, tax_id, logo, service_charge, theme_id, updated_at
`

type UpdateEstablishmentParams struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Address       pgtype.Text    `json:"address"`
	Cep           pgtype.Text    `json:"cep"`
	TaxID         pgtype.Text    `json:"tax_id"`
	Logo          pgtype.Text    `json:"logo"`
	ServiceCharge pgtype.Numeric `json:"service_charge"`
	ThemeID       pgtype.Int8    `json:"theme_id"`
}

func (q *Queries) UpdateEstablishment(ctx context.Context, arg UpdateEstablishmentParams) (Establishment, error) {
	row := q.db.QueryRow(ctx, updateEstablishment,
		arg.ID,
		arg.Name,
		arg.Address,
		arg.Cep,
		arg.TaxID,
		arg.Logo,
		arg.ServiceCharge,
		arg.ThemeID,
	)
	var i Establishment
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Address,
		&i.Cep,
		&i.TaxID,
		&i.Logo,
		&i.ServiceCharge,
		&i.ThemeID,
		&i.UpdatedAt,
	)
	return i, err
}

const updateTheme = `-- name: UpdateTheme :one
UPDATE themes
SET background = $2, card = $3, text = $4, "primary" = $5, accent = $6
WHERE id = $1
RETURNING id, background, card, text, "primary", accent
`

type UpdateThemeParams struct {
	ID         int64  `json:"id"`
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
}

func (q *Queries) UpdateTheme(ctx context.Context, arg UpdateThemeParams) (Theme, error) {
	row := q.db.QueryRow(ctx, updateTheme,
		arg.ID,
		arg.Background,
		arg.Card,
		arg.Text,
		arg.Primary,
		arg.Accent,
	)
	var i Theme
	err := row.Scan(
		&i.ID,
		&i.Background,
		&i.Card,
		&i.Text,
		&i.Primary,
		&i.Accent,
	)
	return i, err
}
