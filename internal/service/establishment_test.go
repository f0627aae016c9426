package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
)

// memEstablishmentStore holds at most one establishment and one theme.
type memEstablishmentStore struct {
	est   *database.Establishment
	theme *database.Theme
}

func (m *memEstablishmentStore) GetEstablishment(ctx context.Context) (database.GetEstablishmentRow, error) {
	if m.est == nil {
		return database.GetEstablishmentRow{}, pgx.ErrNoRows
	}
	row := database.GetEstablishmentRow{
		ID:            m.est.ID,
		Name:          m.est.Name,
		Address:       m.est.Address,
		Cep:           m.est.Cep,
		TaxID:         m.est.TaxID,
		Logo:          m.est.Logo,
		ServiceCharge: m.est.ServiceCharge,
		ThemeID:       m.est.ThemeID,
	}
	if m.theme != nil && m.est.ThemeID.Valid && m.est.ThemeID.Int64 == m.theme.ID {
		row.ThemeBackground = pgtype.Text{String: m.theme.Background, Valid: true}
		row.ThemeCard = pgtype.Text{String: m.theme.Card, Valid: true}
		row.ThemeText = pgtype.Text{String: m.theme.Text, Valid: true}
		row.ThemePrimary = pgtype.Text{String: m.theme.Primary, Valid: true}
		row.ThemeAccent = pgtype.Text{String: m.theme.Accent, Valid: true}
	}
	return row, nil
}

func (m *memEstablishmentStore) CreateTheme(ctx context.Context, arg database.CreateThemeParams) (database.Theme, error) {
	m.theme = &database.Theme{ID: 1, Background: arg.Background, Card: arg.Card, Text: arg.Text, Primary: arg.Primary, Accent: arg.Accent}
	return *m.theme, nil
}

func (m *memEstablishmentStore) UpdateTheme(ctx context.Context, arg database.UpdateThemeParams) (database.Theme, error) {
	m.theme = &database.Theme{ID: arg.ID, Background: arg.Background, Card: arg.Card, Text: arg.Text, Primary: arg.Primary, Accent: arg.Accent}
	return *m.theme, nil
}

func (m *memEstablishmentStore) CreateEstablishment(ctx context.Context, arg database.CreateEstablishmentParams) (database.Establishment, error) {
	m.est = &database.Establishment{
		ID:            1,
		Name:          arg.Name,
		Address:       arg.Address,
		Cep:           arg.Cep,
		TaxID:         arg.TaxID,
		Logo:          arg.Logo,
		ServiceCharge: arg.ServiceCharge,
		ThemeID:       arg.ThemeID,
	}
	return *m.est, nil
}

func (m *memEstablishmentStore) UpdateEstablishment(ctx context.Context, arg database.UpdateEstablishmentParams) (database.Establishment, error) {
	m.est = &database.Establishment{
		ID:            arg.ID,
		Name:          arg.Name,
		Address:       arg.Address,
		Cep:           arg.Cep,
		TaxID:         arg.TaxID,
		Logo:          arg.Logo,
		ServiceCharge: arg.ServiceCharge,
		ThemeID:       arg.ThemeID,
	}
	return *m.est, nil
}

func TestEstablishmentUpdate_CreatesThenUpdates(t *testing.T) {
	store := &memEstablishmentStore{}
	tx := &mockTx{}
	svc := NewEstablishmentService(&mockDB{tx: tx}, func(db database.DBTX) EstablishmentStore { return store })
	ctx := context.Background()

	row, err := svc.Update(ctx, UpdateEstablishmentRequest{
		Name:          "Bar do Zé",
		ServiceCharge: decimal.NewFromInt(10),
		Theme:         ThemeInput{Primary: "#ff0000"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if row.Name != "Bar do Zé" || row.ThemePrimary.String != "#ff0000" {
		t.Errorf("got %q / %q", row.Name, row.ThemePrimary.String)
	}
	if row.ThemeBackground.String != DefaultTheme.Background {
		t.Errorf("background: got %q, want default", row.ThemeBackground.String)
	}
	if !tx.committed {
		t.Error("transaction not committed")
	}

	row, err = svc.Update(ctx, UpdateEstablishmentRequest{
		Name:          "Bar do Zé II",
		Address:       "Rua A, 1",
		ServiceCharge: decimal.RequireFromString("12.5"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if row.ID != 1 || row.Address.String != "Rua A, 1" {
		t.Errorf("got id %d address %q", row.ID, row.Address.String)
	}
	if got := database.DecimalFromNumeric(row.ServiceCharge).StringFixed(2); got != "12.50" {
		t.Errorf("service charge: got %s, want 12.50", got)
	}
	if row.ThemePrimary.String != DefaultTheme.Primary {
		t.Errorf("theme not reset to defaults: %q", row.ThemePrimary.String)
	}
}

func TestEstablishmentUpdate_RejectsServiceCharge(t *testing.T) {
	svc := NewEstablishmentService(&mockDB{tx: &mockTx{}}, func(db database.DBTX) EstablishmentStore {
		return &memEstablishmentStore{}
	})

	for _, v := range []string{"-1", "100.01"} {
		_, err := svc.Update(context.Background(), UpdateEstablishmentRequest{Name: "x", ServiceCharge: decimal.RequireFromString(v)})
		if !errors.Is(err, ErrInvalidServiceCharge) {
			t.Errorf("%s: got %v, want ErrInvalidServiceCharge", v, err)
		}
	}
}
