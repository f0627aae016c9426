package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
)

// EstablishmentServicer defines the service methods needed by establishment
// handlers. Satisfied by *service.EstablishmentService.
type EstablishmentServicer interface {
	Update(ctx context.Context, req service.UpdateEstablishmentRequest) (database.GetEstablishmentRow, error)
}

// EstablishmentHandler serves the venue configuration.
type EstablishmentHandler struct {
	store middleware.EstablishmentStore
	svc   EstablishmentServicer
}

// NewEstablishmentHandler creates a new EstablishmentHandler.
func NewEstablishmentHandler(store middleware.EstablishmentStore, svc EstablishmentServicer) *EstablishmentHandler {
	return &EstablishmentHandler{store: store, svc: svc}
}

// RegisterPublicRoutes registers the establishment read.
func (h *EstablishmentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/establishment", h.Get)
}

// RegisterAdminRoutes registers the establishment write.
func (h *EstablishmentHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/establishment", h.Update)
}

// --- Request / Response types ---

type themeBody struct {
	Background string `json:"background"`
	Card       string `json:"card"`
	Text       string `json:"text"`
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
}

type establishmentRequest struct {
	Name          string           `json:"name"`
	Address       string           `json:"address"`
	Cep           string           `json:"cep"`
	TaxID         string           `json:"taxId"`
	Logo          string           `json:"logo"`
	ServiceCharge *decimal.Decimal `json:"serviceCharge"`
	Theme         themeBody        `json:"theme"`
}

type establishmentResponse struct {
	ID            int64     `json:"id,omitempty"`
	Name          string    `json:"name"`
	Address       *string   `json:"address"`
	Cep           *string   `json:"cep"`
	TaxID         *string   `json:"taxId"`
	Logo          *string   `json:"logo"`
	ServiceCharge string    `json:"serviceCharge"`
	Theme         themeBody `json:"theme"`
}

func toEstablishmentResponse(e database.GetEstablishmentRow) establishmentResponse {
	charge := middleware.DefaultServiceCharge
	if e.ServiceCharge.Valid {
		charge = database.DecimalFromNumeric(e.ServiceCharge)
	}
	return establishmentResponse{
		ID:            e.ID,
		Name:          e.Name,
		Address:       textPtr(e.Address),
		Cep:           textPtr(e.Cep),
		TaxID:         textPtr(e.TaxID),
		Logo:          textPtr(e.Logo),
		ServiceCharge: charge.StringFixed(2),
		Theme: themeBody{
			Background: textOr(e.ThemeBackground, service.DefaultTheme.Background),
			Card:       textOr(e.ThemeCard, service.DefaultTheme.Card),
			Text:       textOr(e.ThemeText, service.DefaultTheme.Text),
			Primary:    textOr(e.ThemePrimary, service.DefaultTheme.Primary),
			Accent:     textOr(e.ThemeAccent, service.DefaultTheme.Accent),
		},
	}
}

// --- Handlers ---

// Get returns the establishment with its theme. Before the first save it
// answers with the defaults.
func (h *EstablishmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	est, err := h.store.GetEstablishment(r.Context())
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		internalError(w, "get establishment", err)
		return
	}
	writeJSON(w, http.StatusOK, toEstablishmentResponse(est))
}

// Update upserts the establishment and its theme.
func (h *EstablishmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req establishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	charge := middleware.DefaultServiceCharge
	if req.ServiceCharge != nil {
		charge = *req.ServiceCharge
	}

	est, err := h.svc.Update(r.Context(), service.UpdateEstablishmentRequest{
		Name:          req.Name,
		Address:       strings.TrimSpace(req.Address),
		Cep:           strings.TrimSpace(req.Cep),
		TaxID:         strings.TrimSpace(req.TaxID),
		Logo:          strings.TrimSpace(req.Logo),
		ServiceCharge: charge,
		Theme: service.ThemeInput{
			Background: req.Theme.Background,
			Card:       req.Theme.Card,
			Text:       req.Theme.Text,
			Primary:    req.Theme.Primary,
			Accent:     req.Theme.Accent,
		},
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidServiceCharge) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		internalError(w, "update establishment", err)
		return
	}
	writeJSON(w, http.StatusOK, toEstablishmentResponse(est))
}

// --- Helpers ---

func textOr(t pgtype.Text, def string) string {
	if !t.Valid || t.String == "" {
		return def
	}
	return t.String
}
