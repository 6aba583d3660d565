package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"passkey-gate/internal/audit/domain"
)

// PostgresRepository appends entries to the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts e.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Entry) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, identity_id, event_kind, failure_reason, user_agent, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.IdentityID, string(e.EventKind), e.FailureReason, e.UserAgent, e.IP, nullJSON(meta), e.CreatedAt)
	return err
}

// ListByIdentity returns up to limit entries for identityID, newest first.
func (r *PostgresRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity_id, event_kind, failure_reason, user_agent, ip, metadata, created_at
		FROM audit_logs WHERE identity_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, identityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		e := &domain.Entry{}
		var kind string
		var reason sql.NullString
		var meta []byte
		if err := rows.Scan(&e.ID, &e.IdentityID, &kind, &reason, &e.UserAgent, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventKind = domain.EventKind(kind)
		if reason.Valid {
			e.FailureReason = &reason.String
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
