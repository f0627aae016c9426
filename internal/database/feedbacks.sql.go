package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createFeedback = `-- name: CreateFeedback :one
INSERT INTO feedbacks (table_number, rating, comment)
VALUES ($1, $2, $3)
RETURNING id, table_number, rating, comment, created_at
`

type CreateFeedbackParams struct {
	TableNumber int32       `json:"table_number"`
	Rating      int32       `json:"rating"`
	Comment     pgtype.Text `json:"comment"`
}

func (q *Queries) CreateFeedback(ctx context.Context, arg CreateFeedbackParams) (Feedback, error) {
	row := q.db.QueryRow(ctx, createFeedback, arg.TableNumber, arg.Rating, arg.Comment)
	var i Feedback
	err := row.Scan(
		&i.ID,
		&i.TableNumber,
		&i.Rating,
		&i.Comment,
		&i.CreatedAt,
	)
	return i, err
}

const listFeedbacks = `-- name: ListFeedbacks :many
SELECT id, table_number, rating, comment, created_at
FROM feedbacks
ORDER BY created_at DESC, id DESC
`

func (q *Queries) ListFeedbacks(ctx context.Context) ([]Feedback, error) {
	rows, err := q.db.Query(ctx, listFeedbacks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Feedback{}
	for rows.Next() {
		var i Feedback
		if err := rows.Scan(
			&i.ID,
			&i.TableNumber,
			&i.Rating,
			&i.Comment,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
