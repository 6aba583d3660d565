package repository

import (
	"context"
	"errors"

	"passkey-gate/internal/identity/domain"
)

// ErrEmailTaken is returned by Create when the email already belongs to an account.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for admin accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)
	Create(ctx context.Context, a *domain.Admin) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}
