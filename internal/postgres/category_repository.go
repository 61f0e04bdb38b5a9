package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"billtracker/internal/remote"
)

var _ remote.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository handles custom category persistence.
type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT name FROM custom_categories WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect categories: %w", err)
	}
	return names, nil
}

func (r *CategoryRepository) InsertCategory(ctx context.Context, userID, name string) error {
	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO custom_categories (user_id, name) VALUES ($1, $2)`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", translate(err))
	}
	return nil
}

func (r *CategoryRepository) DeleteCategory(ctx context.Context, userID, name string) error {
	_, err := r.db.Pool().Exec(ctx,
		`DELETE FROM custom_categories WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
