package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepo reads the user records owned by the account collaborator.
// The notification engine only resolves recipients; it never writes users.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a user repository.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get returns the user, or ErrNotFound for an unknown id.
func (r *UserRepo) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT id, email, display_name, created_at FROM users WHERE id = $1`

	var u User
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &u, nil
}
