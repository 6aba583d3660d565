package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"passkey-gate/internal/audit"
	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/identity/repository"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/metrics"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/security"
)

// LoginResult holds the access token issued by Login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Caller      domain.Caller
}

// AuthService implements password login for admin accounts and account provisioning.
type AuthService struct {
	repo   repository.Repository
	hasher *security.Hasher
	tokens *security.TokenProvider
	audit  audit.Recorder
	log    *zap.Logger
}

// NewAuthService returns an AuthService with the given dependencies. rec may be nil.
func NewAuthService(repo repository.Repository, hasher *security.Hasher, tokens *security.TokenProvider, rec audit.Recorder, log *zap.Logger) *AuthService {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &AuthService{repo: repo, hasher: hasher, tokens: tokens, audit: rec, log: logger.OrNop(log)}
}

// Login verifies email and password and issues an access token. Unknown emails, wrong passwords and
// disabled accounts all return errs.ErrInvalidCredentials after comparable bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string, client auditdomain.Client) (*LoginResult, error) {
	email = normalizeEmail(email)
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("identity: load admin: %w", err)
	}
	if a == nil {
		s.hasher.Verify("", password)
		return nil, s.loginFailed(ctx, "", "unknown-email", client)
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		return nil, s.loginFailed(ctx, a.ID, "wrong-password", client)
	}
	if a.Status != domain.StatusActive {
		return nil, s.loginFailed(ctx, a.ID, "account-disabled", client)
	}
	caller := a.Caller()
	token, _, expiresAt, err := s.tokens.IssueAccess(caller)
	if err != nil {
		return nil, fmt.Errorf("identity: issue token: %w", err)
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.audit.Record(ctx, audit.Event{IdentityID: a.ID, Kind: auditdomain.LoginSucceeded, Client: client})
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, Caller: caller}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identityID, reason string, client auditdomain.Client) error {
	metrics.LoginsTotal.WithLabelValues("failure").Inc()
	if identityID != "" {
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.LoginFailed, Reason: reason, Client: client})
	} else {
		s.log.Info("login failed", zap.String("reason", reason), zap.String("ip", client.IP))
	}
	return errs.ErrInvalidCredentials
}

// CreateAdmin provisions an account. Used by the seed command.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password, name string, role domain.Role) (*domain.Admin, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if role != domain.RoleAdmin && role != domain.RoleViewer {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &domain.Admin{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hashed,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("identity: create admin: %w", err)
	}
	return a, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case r < '0' || (r > '9' && r < 'A') || (r > 'Z' && r < 'a') || r > 'z':
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
