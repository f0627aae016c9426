package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/database"
)

const establishmentKey contextKey = "establishment"

// DefaultServiceCharge applies when no establishment row exists yet.
var DefaultServiceCharge = decimal.NewFromInt(10)

// EstablishmentStore is satisfied by *database.Queries.
type EstablishmentStore interface {
	GetEstablishment(ctx context.Context) (database.GetEstablishmentRow, error)
}

// WithEstablishment loads the establishment configuration once per request
// and stores it in the request context.
func WithEstablishment(store EstablishmentStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			est, err := store.GetEstablishment(r.Context())
			if errors.Is(err, pgx.ErrNoRows) {
				est = database.GetEstablishmentRow{
					ServiceCharge: database.NumericFromDecimal(DefaultServiceCharge),
				}
			} else if err != nil {
				zap.L().Error("load establishment", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}

			ctx := context.WithValue(r.Context(), establishmentKey, est)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EstablishmentFromContext returns the establishment loaded by WithEstablishment.
func EstablishmentFromContext(ctx context.Context) (database.GetEstablishmentRow, bool) {
	est, ok := ctx.Value(establishmentKey).(database.GetEstablishmentRow)
	return est, ok
}
