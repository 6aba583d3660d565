package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"passkey-gate/internal/challenge/domain"
)

const challengeColumns = `id, identity_id, value, kind, relying_party_id, expected_origin, session_data,
	issued_at, expires_at, used, used_at`

// PostgresRepository persists challenges in the webauthn_challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create supersedes older unused challenges and inserts c in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE webauthn_challenges SET used = true, used_at = $3
		WHERE identity_id = $1 AND kind = $2 AND NOT used`,
		c.IdentityID, string(c.Kind), c.IssuedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO webauthn_challenges (id, identity_id, value, kind, relying_party_id, expected_origin,
			session_data, issued_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false)`,
		c.ID, c.IdentityID, c.Value, string(c.Kind), c.RelyingPartyID, c.ExpectedOrigin,
		c.SessionData, c.IssuedAt, c.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ConsumeLatest is a single conditional UPDATE: the row lock taken by the subquery serializes
// concurrent consumers, and "AND NOT used" makes the loser see zero rows.
func (r *PostgresRepository) ConsumeLatest(ctx context.Context, identityID string, kind domain.Kind, now time.Time) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE webauthn_challenges SET used = true, used_at = $3
		WHERE id = (
			SELECT id FROM webauthn_challenges
			WHERE identity_id = $1 AND kind = $2 AND NOT used AND expires_at > $3
			ORDER BY issued_at DESC, id DESC
			LIMIT 1
			FOR UPDATE
		) AND NOT used
		RETURNING `+challengeColumns,
		identityID, string(kind), now)
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// DeleteExpired removes rows whose expiry is before cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanChallenge(row *sql.Row) (*domain.Challenge, error) {
	var (
		c      domain.Challenge
		kind   string
		usedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.IdentityID, &c.Value, &kind, &c.RelyingPartyID, &c.ExpectedOrigin,
		&c.SessionData, &c.IssuedAt, &c.ExpiresAt, &c.Used, &usedAt); err != nil {
		return nil, err
	}
	c.Kind = domain.Kind(kind)
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}
