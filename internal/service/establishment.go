package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
)

var ErrInvalidServiceCharge = errors.New("serviceCharge must be between 0 and 100")

// DefaultTheme is applied when the establishment has no theme yet.
var DefaultTheme = ThemeInput{
	Background: "#06120c",
	Card:       "#0d1f15",
	Text:       "#fefce8",
	Primary:    "#d18a59",
	Accent:     "#c17a49",
}

// EstablishmentStore defines the DB methods needed to upsert the establishment.
// Satisfied by *database.Queries (and its WithTx variant).
type EstablishmentStore interface {
	GetEstablishment(ctx context.Context) (database.GetEstablishmentRow, error)
	CreateTheme(ctx context.Context, arg database.CreateThemeParams) (database.Theme, error)
	UpdateTheme(ctx context.Context, arg database.UpdateThemeParams) (database.Theme, error)
	CreateEstablishment(ctx context.Context, arg database.CreateEstablishmentParams) (database.Establishment, error)
	UpdateEstablishment(ctx context.Context, arg database.UpdateEstablishmentParams) (database.Establishment, error)
}

type NewEstablishmentStore func(db database.DBTX) EstablishmentStore

type ThemeInput struct {
	Background string
	Card       string
	Text       string
	Primary    string
	Accent     string
}

// withDefaults fills empty colors from DefaultTheme.
func (t ThemeInput) withDefaults() ThemeInput {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return ThemeInput{
		Background: pick(t.Background, DefaultTheme.Background),
		Card:       pick(t.Card, DefaultTheme.Card),
		Text:       pick(t.Text, DefaultTheme.Text),
		Primary:    pick(t.Primary, DefaultTheme.Primary),
		Accent:     pick(t.Accent, DefaultTheme.Accent),
	}
}

type UpdateEstablishmentRequest struct {
	Name          string
	Address       string
	Cep           string
	TaxID         string
	Logo          string
	ServiceCharge decimal.Decimal
	Theme         ThemeInput
}

type EstablishmentService struct {
	db       TxBeginner
	newStore NewEstablishmentStore
}

func NewEstablishmentService(db TxBeginner, newStore NewEstablishmentStore) *EstablishmentService {
	return &EstablishmentService{db: db, newStore: newStore}
}

// Update writes the singleton establishment and its theme, creating both on
// first use.
func (s *EstablishmentService) Update(ctx context.Context, req UpdateEstablishmentRequest) (database.GetEstablishmentRow, error) {
	if req.ServiceCharge.IsNegative() || req.ServiceCharge.GreaterThan(decimal.NewFromInt(100)) {
		return database.GetEstablishmentRow{}, ErrInvalidServiceCharge
	}
	theme := req.Theme.withDefaults()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return database.GetEstablishmentRow{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetEstablishment(ctx)
	exists := true
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
	} else if err != nil {
		return database.GetEstablishmentRow{}, fmt.Errorf("get establishment: %w", err)
	}

	var themeID int64
	if exists && current.ThemeID.Valid {
		t, err := store.UpdateTheme(ctx, database.UpdateThemeParams{
			ID:         current.ThemeID.Int64,
			Background: theme.Background,
			Card:       theme.Card,
			Text:       theme.Text,
			Primary:    theme.Primary,
			Accent:     theme.Accent,
		})
		if err != nil {
			return database.GetEstablishmentRow{}, fmt.Errorf("update theme: %w", err)
		}
		themeID = t.ID
	} else {
		t, err := store.CreateTheme(ctx, database.CreateThemeParams{
			Background: theme.Background,
			Card:       theme.Card,
			Text:       theme.Text,
			Primary:    theme.Primary,
			Accent:     theme.Accent,
		})
		if err != nil {
			return database.GetEstablishmentRow{}, fmt.Errorf("create theme: %w", err)
		}
		themeID = t.ID
	}

	charge := database.NumericFromDecimal(req.ServiceCharge)
	if exists {
		_, err = store.UpdateEstablishment(ctx, database.UpdateEstablishmentParams{
			ID:            current.ID,
			Name:          req.Name,
			Address:       database.Text(req.Address),
			Cep:           database.Text(req.Cep),
			TaxID:         database.Text(req.TaxID),
			Logo:          database.Text(req.Logo),
			ServiceCharge: charge,
			ThemeID:       database.Int8(&themeID),
		})
	} else {
		_, err = store.CreateEstablishment(ctx, database.CreateEstablishmentParams{
			Name:          req.Name,
			Address:       database.Text(req.Address),
			Cep:           database.Text(req.Cep),
			TaxID:         database.Text(req.TaxID),
			Logo:          database.Text(req.Logo),
			ServiceCharge: charge,
			ThemeID:       database.Int8(&themeID),
		})
	}
	if err != nil {
		return database.GetEstablishmentRow{}, fmt.Errorf("save establishment: %w", err)
	}

	updated, err := store.GetEstablishment(ctx)
	if err != nil {
		return database.GetEstablishmentRow{}, fmt.Errorf("reload establishment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.GetEstablishmentRow{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

var _ EstablishmentStore = (*database.Queries)(nil)
