package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"passkey-gate/internal/identity/domain"
)

const uniqueViolation = "23505"

// PostgresRepository persists admin accounts in the admin_users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an admin repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const adminColumns = `id, email, name, role, password_hash, status, created_at, updated_at`

// GetByID returns the admin for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	return r.get(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id)
}

// GetByEmail returns the admin for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return r.get(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE email = $1`, email)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*domain.Admin, error) {
	a := &domain.Admin{}
	var role, status string
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&a.ID, &a.Email, &a.Name, &role, &a.PasswordHash, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Status = domain.Status(status)
	return a, nil
}

// Create inserts a. Returns ErrEmailTaken on a duplicate email.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Admin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_users (id, email, name, role, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Email, a.Name, string(a.Role), a.PasswordHash, string(a.Status), a.CreatedAt, a.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

// UpdatePasswordHash replaces the stored password hash for id.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE admin_users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	return err
}
