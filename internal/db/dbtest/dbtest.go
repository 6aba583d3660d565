// Package dbtest opens a migrated Postgres database for repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"

	"passkey-gate/internal/db"
	"passkey-gate/internal/db/migrate"
)

// Open skips the test unless TEST_DATABASE_URL is set, migrates that database up and returns a
// connection that is closed when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// CreateAdmin inserts an admin_users row and returns its id. The row and anything referencing it
// in credentials are removed when the test ends.
func CreateAdmin(t *testing.T, conn *sql.DB) string {
	t.Helper()
	id := uuid.NewString()
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO admin_users (id, email, name, role, password_hash) VALUES ($1, $2, 'Test Admin', 'admin', 'x')`,
		id, id+"@example.test"); err != nil {
		t.Fatalf("insert admin: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(ctx, `DELETE FROM credentials WHERE identity_id = $1`, id)
		_, _ = conn.ExecContext(ctx, `DELETE FROM admin_users WHERE id = $1`, id)
	})
	return id
}
