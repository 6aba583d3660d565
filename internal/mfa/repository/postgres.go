package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"passkey-gate/internal/mfa/domain"
)

// PostgresRepository persists OTP codes in the otp_challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the code. The code must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.OTPChallenge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = $2
		WHERE identity_id = $1 AND consumed_at IS NULL`,
		c.IdentityID, c.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, identity_id, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.IdentityID, c.CodeHash, c.ExpiresAt, c.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetLatestActive returns the newest live code for identityID, or nil if not found.
func (r *PostgresRepository) GetLatestActive(ctx context.Context, identityID string, now time.Time) (*domain.OTPChallenge, error) {
	var c domain.OTPChallenge
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, code_hash, expires_at, created_at
		FROM otp_challenges
		WHERE identity_id = $1 AND consumed_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`,
		identityID, now).Scan(&c.ID, &c.IdentityID, &c.CodeHash, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Consume is a conditional UPDATE; a concurrent consumer sees zero rows affected.
func (r *PostgresRepository) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`,
		id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpired removes codes whose expiry is before cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
