package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrDefaultCategory  = errors.New("the default category cannot be deleted")
)

// CategoryStore defines the DB methods needed to remove a category.
// Satisfied by *database.Queries (and its WithTx variant).
type CategoryStore interface {
	GetCategory(ctx context.Context, id int64) (database.Category, error)
	EnsureCategory(ctx context.Context, name string) (database.Category, error)
	ReassignProductsCategory(ctx context.Context, arg database.ReassignProductsCategoryParams) (int64, error)
	DeleteCategory(ctx context.Context, id int64) (int64, error)
}

type NewCategoryStore func(db database.DBTX) CategoryStore

type CategoryService struct {
	db       TxBeginner
	newStore NewCategoryStore
}

func NewCategoryService(db TxBeginner, newStore NewCategoryStore) *CategoryService {
	return &CategoryService{db: db, newStore: newStore}
}

// DeleteCategory moves the category's products to the default category and
// then deletes it. It returns how many products were moved.
func (s *CategoryService) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	category, err := store.GetCategory(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCategoryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get category: %w", err)
	}
	if category.Name == enum.DefaultCategory {
		return 0, ErrDefaultCategory
	}

	fallback, err := store.EnsureCategory(ctx, enum.DefaultCategory)
	if err != nil {
		return 0, fmt.Errorf("ensure default category: %w", err)
	}

	moved, err := store.ReassignProductsCategory(ctx, database.ReassignProductsCategoryParams{
		FromID: id,
		ToID:   database.Int8(&fallback.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("reassign products: %w", err)
	}

	if _, err := store.DeleteCategory(ctx, id); err != nil {
		return 0, fmt.Errorf("delete category: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return moved, nil
}

var _ CategoryStore = (*database.Queries)(nil)
