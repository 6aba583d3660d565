package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"passkey-gate/internal/credential/domain"
)

const credentialColumns = `id, identity_id, credential_id, public_key, sign_count, transports, device_label,
	attestation_type, aaguid, backup_eligible, backup_state, is_active, created_at, last_used_at, revoked_at`

// PostgresRepository persists credentials in the credentials table.
type PostgresRepository struct {
	db      *sql.DB
	typeMap *pgtype.Map
}

// NewPostgresRepository returns a credential repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, typeMap: pgtype.NewMap()}
}

// GetByCredentialID returns the credential for credentialID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE credential_id = $1`, credentialID)
	c, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListByIdentity returns every credential of identityID ordered by creation time.
func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityID string) ([]*domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE identity_id = $1 ORDER BY created_at, id`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Credential
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert inserts the credential or refreshes the existing active row owned by the same identity.
// The ON CONFLICT guard keeps a single row per credential id and never crosses identities.
func (r *PostgresRepository) Upsert(ctx context.Context, c *domain.Credential) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	transports := c.Transports
	if transports == nil {
		transports = []string{}
	}
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO credentials (id, identity_id, credential_id, public_key, sign_count, transports, device_label,
			attestation_type, aaguid, backup_eligible, backup_state, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, $12)
		ON CONFLICT (credential_id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			sign_count = EXCLUDED.sign_count,
			transports = EXCLUDED.transports,
			device_label = EXCLUDED.device_label,
			attestation_type = EXCLUDED.attestation_type,
			aaguid = EXCLUDED.aaguid,
			backup_eligible = EXCLUDED.backup_eligible,
			backup_state = EXCLUDED.backup_state
		WHERE credentials.identity_id = EXCLUDED.identity_id AND credentials.is_active
		RETURNING id`,
		c.ID, c.IdentityID, c.CredentialID, c.PublicKey, int64(c.SignCount), transports, c.DeviceLabel,
		c.AttestationType, c.AAGUID, c.BackupEligible, c.BackupState, c.CreatedAt,
	).Scan(&id)
	if err == nil {
		c.ID = id
		c.IsActive = true
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	existing, getErr := r.GetByCredentialID(ctx, c.CredentialID)
	if getErr != nil {
		return getErr
	}
	if existing != nil && existing.IdentityID != c.IdentityID {
		return ErrOwnedByOtherIdentity
	}
	return ErrRevoked
}

// UpdateCounter performs a compare-and-set on sign_count.
func (r *PostgresRepository) UpdateCounter(ctx context.Context, credentialID []byte, expected, next uint32, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET sign_count = $3, last_used_at = $4
		WHERE credential_id = $1 AND sign_count = $2 AND is_active`,
		credentialID, int64(expected), int64(next), usedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCounterConflict
	}
	return nil
}

// Deactivate flips is_active to false for the identity's active credential.
func (r *PostgresRepository) Deactivate(ctx context.Context, identityID string, credentialID []byte, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET is_active = false, revoked_at = $3
		WHERE identity_id = $1 AND credential_id = $2 AND is_active`,
		identityID, credentialID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(row rowScanner) (*domain.Credential, error) {
	var (
		c          domain.Credential
		signCount  int64
		transports []string
		lastUsedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.IdentityID, &c.CredentialID, &c.PublicKey, &signCount, r.typeMap.SQLScanner(&transports),
		&c.DeviceLabel, &c.AttestationType, &c.AAGUID, &c.BackupEligible, &c.BackupState, &c.IsActive,
		&c.CreatedAt, &lastUsedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	c.SignCount = uint32(signCount)
	c.Transports = transports
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		c.LastUsedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return &c, nil
}
