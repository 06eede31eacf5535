package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"example.com/trackerimport/internal/domain"
)

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// BasicAuthenticator verifies HTTP Basic credentials against a UserStore.
type BasicAuthenticator struct {
	users UserStore
}

func NewBasicAuthenticator(users UserStore) *BasicAuthenticator {
	return &BasicAuthenticator{users: users}
}

// Authenticate checks account state before the password, so a locked account
// is reported as locked whatever password was sent.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*domain.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok || username == "" {
		return nil, ErrMissingCredentials
	}

	u, err := a.users.FindByUsername(r.Context(), username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("authenticate %q: %w", username, ErrBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate %q: lookup: %v: %w", username, err, ErrBadCredentials)
	}

	if u.Locked {
		return nil, fmt.Errorf("authenticate %q: %w", username, ErrAccountLocked)
	}
	if u.Disabled {
		return nil, fmt.Errorf("authenticate %q: %w", username, ErrAccountDisabled)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("authenticate %q: %w", username, ErrBadCredentials)
	}
	return u, nil
}

type ctxKey struct{}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(ctxKey{}).(*domain.User)
	return u
}
