package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betfolio/arena/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Upsert inserts or refreshes a user identity surfaced by the auth layer.
func (s *UserStore) Upsert(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, wallet_address, email, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			email          = EXCLUDED.email`

	_, err := s.pool.Exec(ctx, query, u.ID, u.WalletAddress, u.Email)
	if err != nil {
		return fmt.Errorf("postgres: upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a user by their primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, wallet_address, email, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.WalletAddress, &u.Email, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}
