// Package challenge is the ledger of short-lived, single-use WebAuthn challenges.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"passkey-gate/internal/challenge/domain"
	"passkey-gate/internal/challenge/repository"
)

var (
	// ErrChallengeTooShort is returned when a challenge value has fewer than domain.MinValueLength bytes.
	ErrChallengeTooShort = errors.New("challenge: value shorter than 16 bytes")
	// ErrInvalidKind is returned for an unknown challenge kind.
	ErrInvalidKind = errors.New("challenge: invalid kind")
)

// IssueParams describes a challenge to persist.
type IssueParams struct {
	IdentityID     string
	Kind           domain.Kind
	RelyingPartyID string
	ExpectedOrigin string
	Value          []byte
	SessionData    []byte
	TTL            time.Duration
}

// Ledger issues and consumes challenges on top of a Repository.
type Ledger struct {
	repo repository.Repository
	nowF func() time.Time
}

// NewLedger returns a Ledger backed by repo.
func NewLedger(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the ledger clock. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.nowF = now
	return l
}

// Issue persists a new challenge that expires after p.TTL. Older unused challenges of the same
// identity and kind are superseded.
func (l *Ledger) Issue(ctx context.Context, p IssueParams) (*domain.Challenge, error) {
	if len(p.Value) < domain.MinValueLength {
		return nil, ErrChallengeTooShort
	}
	if !p.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if p.TTL <= 0 {
		return nil, fmt.Errorf("challenge: ttl must be positive, got %v", p.TTL)
	}
	now := l.nowF()
	c := &domain.Challenge{
		ID:             ulid.Make().String(),
		IdentityID:     p.IdentityID,
		Value:          append([]byte(nil), p.Value...),
		Kind:           p.Kind,
		RelyingPartyID: p.RelyingPartyID,
		ExpectedOrigin: p.ExpectedOrigin,
		SessionData:    p.SessionData,
		IssuedAt:       now,
		ExpiresAt:      now.Add(p.TTL),
	}
	if err := l.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("challenge: create: %w", err)
	}
	return c, nil
}

// Consume burns and returns the identity's most recent active challenge of kind, or nil if none.
func (l *Ledger) Consume(ctx context.Context, identityID string, kind domain.Kind) (*domain.Challenge, error) {
	c, err := l.repo.ConsumeLatest(ctx, identityID, kind, l.nowF())
	if err != nil {
		return nil, fmt.Errorf("challenge: consume: %w", err)
	}
	return c, nil
}

// Purge deletes challenges that expired more than retention ago.
func (l *Ledger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return l.repo.DeleteExpired(ctx, l.nowF().Add(-retention))
}
