// seed provisions an admin account in the database. Idempotent: an existing email is left untouched.
// Credentials come from -email/-password or BOOTSTRAP_ADMIN_EMAIL/BOOTSTRAP_ADMIN_PASSWORD.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"passkey-gate/internal/config"
	"passkey-gate/internal/db"
	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/identity/repository"
	"passkey-gate/internal/identity/service"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	email := flag.String("email", cfg.BootstrapAdminEmail, "admin email")
	password := flag.String("password", cfg.BootstrapAdminPassword, "admin password (12+ characters with upper, lower, digit and symbol)")
	name := flag.String("name", "Admin", "display name")
	role := flag.String("role", string(domain.RoleAdmin), "role: admin or viewer")
	flag.Parse()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if *email == "" || *password == "" {
		log.Fatal("an email and password are required (flags or BOOTSTRAP_ADMIN_EMAIL/BOOTSTRAP_ADMIN_PASSWORD)")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer conn.Close()

	// Token issuance and auditing are not used when provisioning accounts.
	auth := service.NewAuthService(repository.NewPostgresRepository(conn), security.NewHasher(cfg.BcryptCost), nil, nil, log)
	a, err := auth.CreateAdmin(context.Background(), *email, *password, *name, domain.Role(*role))
	if errors.Is(err, repository.ErrEmailTaken) {
		log.Info("seed already applied; account exists", zap.String("email", *email))
		return
	}
	if err != nil {
		log.Fatal("create admin failed", zap.Error(err))
	}
	log.Info("admin created", zap.String("identity_id", a.ID), zap.String("email", a.Email), zap.String("role", string(a.Role)))
}
