// Package service holds the transactional workflows: table lifecycle, order
// fulfillment, sessions, category removal and establishment updates.
package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mesa-digital/api/internal/database"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB runs single statements and starts transactions. Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// Errors shared across services.
var (
	ErrTableNotFound = errors.New("table not found")
	ErrOrderNotFound = errors.New("order not found")
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}
