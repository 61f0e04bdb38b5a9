package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"billtracker/internal/core"
	"billtracker/internal/remote"
)

var _ remote.UserRepository = (*UserRepository)(nil)

// UserRepository handles user persistence.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	if uuid.Validate(id) != nil {
		return nil, core.ErrNotFound
	}
	return r.get(ctx, `SELECT id::text, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.get(ctx, `SELECT id::text, email, password_hash, created_at FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *UserRepository) get(ctx context.Context, query, arg string) (*core.User, error) {
	var u core.User
	err := r.db.Pool().QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
