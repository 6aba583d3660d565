package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"passkey-gate/internal/mfasession/domain"
)

// PostgresRepository persists sessions in the mfa_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an MFA session repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the session for identityID, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, identityID string) (*domain.Session, error) {
	s := &domain.Session{}
	var otp, stepA, stepB, full sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT identity_id, otp_verified_at, step_a_verified_at, step_b_verified_at, fully_verified_at,
			first_step_at, expires_at, updated_at, version
		FROM mfa_sessions WHERE identity_id = $1`, identityID).
		Scan(&s.IdentityID, &otp, &stepA, &stepB, &full, &s.FirstStepAt, &s.ExpiresAt, &s.UpdatedAt, &s.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.OTPVerifiedAt = timePtr(otp)
	s.StepAVerifiedAt = timePtr(stepA)
	s.StepBVerifiedAt = timePtr(stepB)
	s.FullyVerifiedAt = timePtr(full)
	return s, nil
}

// Save inserts a new session or updates an existing one under an optimistic version check.
func (r *PostgresRepository) Save(ctx context.Context, s *domain.Session) error {
	var res sql.Result
	var err error
	if s.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO mfa_sessions (identity_id, otp_verified_at, step_a_verified_at, step_b_verified_at,
				fully_verified_at, first_step_at, expires_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
			ON CONFLICT (identity_id) DO NOTHING`,
			s.IdentityID, s.OTPVerifiedAt, s.StepAVerifiedAt, s.StepBVerifiedAt, s.FullyVerifiedAt,
			s.FirstStepAt, s.ExpiresAt, s.UpdatedAt)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE mfa_sessions SET otp_verified_at = $2, step_a_verified_at = $3, step_b_verified_at = $4,
				fully_verified_at = $5, first_step_at = $6, expires_at = $7, updated_at = $8, version = version + 1
			WHERE identity_id = $1 AND version = $9`,
			s.IdentityID, s.OTPVerifiedAt, s.StepAVerifiedAt, s.StepBVerifiedAt, s.FullyVerifiedAt,
			s.FirstStepAt, s.ExpiresAt, s.UpdatedAt, s.Version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

// Delete removes the session for identityID.
func (r *PostgresRepository) Delete(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_sessions WHERE identity_id = $1`, identityID)
	return err
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
