package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"passkey-gate/internal/audit/domain"
	auditrepo "passkey-gate/internal/audit/repository"
	"passkey-gate/internal/telemetry"
)

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.Entry) error { return errors.New("disk full") }
func (failingRepo) ListByIdentity(context.Context, string, int) ([]*domain.Entry, error) {
	return nil, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, ev *telemetry.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func TestLogger_Record_Success(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	l := NewLogger(repo, nil, nil)
	l.Record(context.Background(), Event{
		IdentityID: "alice",
		Kind:       domain.RegistrationVerified,
		Client:     domain.Client{UserAgent: "Mozilla/5.0", IP: "198.51.100.4"},
	})

	entries := repo.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.IdentityID != "alice" {
		t.Errorf("identity_id = %q, want %q", e.IdentityID, "alice")
	}
	if e.EventKind != domain.RegistrationVerified {
		t.Errorf("event_kind = %q, want %q", e.EventKind, domain.RegistrationVerified)
	}
	if e.FailureReason != nil {
		t.Errorf("failure_reason = %q, want nil", *e.FailureReason)
	}
	if e.IP != "198.51.100.4" || e.UserAgent != "Mozilla/5.0" {
		t.Errorf("client = %q/%q", e.IP, e.UserAgent)
	}
	if len(e.ID) != 26 {
		t.Errorf("id = %q, want a 26 char ULID", e.ID)
	}
}

func TestLogger_Record_FailureReason(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	l := NewLogger(repo, nil, nil)
	l.Record(context.Background(), Event{IdentityID: "alice", Kind: domain.AuthenticationFailed, Reason: "possible-clone"})
	e := repo.All()[0]
	if e.FailureReason == nil || *e.FailureReason != "possible-clone" {
		t.Errorf("failure_reason = %v, want possible-clone", e.FailureReason)
	}
}

func TestLogger_Record_WriteFailureIsSwallowed(t *testing.T) {
	l := NewLogger(failingRepo{}, nil, nil)
	// Must not panic or block.
	l.Record(context.Background(), Event{IdentityID: "alice", Kind: domain.OTPSent})
}

func TestLogger_Record_CanceledRequestStillPersists(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	l := NewLogger(repo, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, Event{IdentityID: "alice", Kind: domain.OriginRejected})
	if n := len(repo.All()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestLogger_Record_FansOut(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 1)}
	l := NewLogger(auditrepo.NewMemoryRepository(), em, nil)
	l.Record(context.Background(), Event{
		IdentityID: "alice", Kind: domain.AuthenticationVerified,
		Metadata: map[string]string{"step": "step_b"},
	})
	select {
	case <-em.done:
	case <-time.After(time.Second):
		t.Fatal("emitter not called")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	ev := em.events[0]
	if ev.EventKind != "authentication-verified" || ev.Source != Source || ev.Metadata["step"] != "step_b" {
		t.Errorf("event = %+v", ev)
	}
}

func TestMemoryRepository_ListByIdentity(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"alice", "bob", "alice", "alice"} {
		_ = repo.Append(context.Background(), &domain.Entry{
			ID: string(rune('a' + i)), IdentityID: id, EventKind: domain.OTPSent, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	got, err := repo.ListByIdentity(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("ListByIdentity: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d" || got[1].ID != "c" {
		t.Errorf("ListByIdentity = %v, want newest two alice entries", got)
	}
}
