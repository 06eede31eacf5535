package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/trackerimport/internal/auth"
	"example.com/trackerimport/internal/domain"
)

type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := s.db.Pool.QueryRow(ctx, `
SELECT uid, username, password_hash, locked, disabled
FROM users
WHERE username = $1`, username).Scan(&u.UID, &u.Username, &u.PasswordHash, &u.Locked, &u.Disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
