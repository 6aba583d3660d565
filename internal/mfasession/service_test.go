package mfasession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/mfasession/repository"
	"passkey-gate/internal/platform/errs"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const alice = "6f1c2b9e-6a43-4f5a-9d0e-3a7c1e2b4d01"

func newService(maxLifetime time.Duration) (*Service, *repository.MemoryRepository, *clock) {
	repo := repository.NewMemoryRepository()
	clk := &clock{now: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
	return NewService(repo, 4*time.Hour, maxLifetime, nil).WithClock(clk.Now), repo, clk
}

func mustStatus(t *testing.T, s *Service, id string) Status {
	t.Helper()
	st, err := s.CheckStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	return st
}

func TestCheckStatus_Empty(t *testing.T) {
	svc, _, _ := newService(0)
	st := mustStatus(t, svc, alice)
	if st.OK || st.State != domain.StateEmpty || st.Session != nil {
		t.Errorf("status = %+v, want empty and not ok", st)
	}
}

func TestAllThreeStepsRequired(t *testing.T) {
	ctx := context.Background()
	orders := [][]domain.Step{
		{domain.StepOTP, domain.StepA, domain.StepB},
		{domain.StepB, domain.StepOTP, domain.StepA},
		{domain.StepA, domain.StepB, domain.StepOTP},
	}
	for _, order := range orders {
		svc, _, clk := newService(0)
		for i, step := range order {
			var err error
			if step == domain.StepOTP {
				_, err = svc.RecordOTP(ctx, alice)
			} else {
				_, err = svc.RecordWebauthnStep(ctx, alice, step)
			}
			if err != nil {
				t.Fatalf("record %s: %v", step, err)
			}
			clk.Advance(time.Minute)
			st := mustStatus(t, svc, alice)
			last := i == len(order)-1
			if st.OK != last {
				t.Errorf("order %v after %s: ok = %v, want %v", order, step, st.OK, last)
			}
			if !last && st.State != domain.StatePartiallyVerified {
				t.Errorf("order %v after %s: state = %q, want partially_verified", order, step, st.State)
			}
			if !last && st.Session.FullyVerifiedAt != nil {
				t.Errorf("order %v after %s: fully_verified_at stamped early", order, step)
			}
		}
	}
}

func TestRepeatedStepDoesNotComplete(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(0)
	svc.RecordOTP(ctx, alice)
	svc.RecordWebauthnStep(ctx, alice, domain.StepA)
	svc.RecordWebauthnStep(ctx, alice, domain.StepA)
	if st := mustStatus(t, svc, alice); st.OK {
		t.Error("step_a twice must not substitute for step_b")
	}
}

func completeSession(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.RecordOTP(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordWebauthnStep(ctx, alice, domain.StepA); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordWebauthnStep(ctx, alice, domain.StepB); err != nil {
		t.Fatal(err)
	}
}

func TestExpiryIsRecomputedOnRead(t *testing.T) {
	svc, _, clk := newService(0)
	completeSession(t, svc)

	clk.Advance(4*time.Hour - time.Second)
	if st := mustStatus(t, svc, alice); !st.OK {
		t.Fatal("session should be valid just before the window ends")
	}
	clk.Advance(time.Second)
	st := mustStatus(t, svc, alice)
	if st.OK {
		t.Error("session must not authorize once expires_at has passed")
	}
	if st.State != domain.StateExpired {
		t.Errorf("state = %q, want expired", st.State)
	}
	if st.Session.FullyVerifiedAt == nil {
		t.Error("historical fully_verified_at is expected to remain on the row")
	}
}

func TestExpiredSessionRestartsFromEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(0)
	completeSession(t, svc)
	clk.Advance(5 * time.Hour)

	sess, err := svc.RecordWebauthnStep(ctx, alice, domain.StepA)
	if err != nil {
		t.Fatalf("RecordWebauthnStep: %v", err)
	}
	if sess.OTPVerifiedAt != nil || sess.StepBVerifiedAt != nil {
		t.Error("steps from an expired window must not carry over")
	}
	if st := mustStatus(t, svc, alice); st.OK || st.State != domain.StatePartiallyVerified {
		t.Errorf("status = %+v, want partially_verified", st)
	}
}

func TestEverySubStepSlidesTheWindow(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(0)
	svc.RecordOTP(ctx, alice)
	clk.Advance(3 * time.Hour)
	svc.RecordWebauthnStep(ctx, alice, domain.StepA)
	clk.Advance(3 * time.Hour)
	sess, err := svc.RecordWebauthnStep(ctx, alice, domain.StepB)
	if err != nil {
		t.Fatal(err)
	}
	if sess.OTPVerifiedAt == nil {
		t.Fatal("otp step should survive because step_a slid the window")
	}
	want := clk.Now().Add(4 * time.Hour)
	if !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}
	if st := mustStatus(t, svc, alice); !st.OK {
		t.Error("session should be fully verified")
	}
}

func TestMaxLifetimeCapsSlidingWindow(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(12 * time.Hour)
	ceiling := clk.Now().Add(12 * time.Hour)
	completeSession(t, svc)
	for i := 0; i < 3; i++ {
		clk.Advance(3 * time.Hour)
		if _, err := svc.RecordOTP(ctx, alice); err != nil {
			t.Fatal(err)
		}
	}
	st := mustStatus(t, svc, alice)
	if !st.Session.ExpiresAt.Equal(ceiling) {
		t.Errorf("ExpiresAt = %v, want ceiling %v", st.Session.ExpiresAt, ceiling)
	}
	if !st.OK {
		t.Fatal("session should still be valid before the ceiling")
	}
	clk.Advance(3 * time.Hour)
	if st := mustStatus(t, svc, alice); st.OK {
		t.Error("session at its ceiling must not authorize")
	}
}

func TestRecordWebauthnStep_RejectsUnknownStep(t *testing.T) {
	svc, repo, _ := newService(0)
	for _, step := range []domain.Step{domain.StepOTP, "", "step_c"} {
		_, err := svc.RecordWebauthnStep(context.Background(), alice, step)
		if !errors.Is(err, errs.ErrInvalidStep) {
			t.Errorf("RecordWebauthnStep(%q) err = %v, want ErrInvalidStep", step, err)
		}
	}
	if s, _ := repo.Get(context.Background(), alice); s != nil {
		t.Error("rejected step must not create a session")
	}
}

func TestConcurrentStepsAreNotLost(t *testing.T) {
	svc, _, _ := newService(0)
	ctx := context.Background()
	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	for _, fn := range []func() error{
		func() error { _, err := svc.RecordOTP(ctx, alice); return err },
		func() error { _, err := svc.RecordWebauthnStep(ctx, alice, domain.StepA); return err },
		func() error { _, err := svc.RecordWebauthnStep(ctx, alice, domain.StepB); return err },
	} {
		wg.Add(1)
		go func(f func() error) {
			defer wg.Done()
			errCh <- f()
		}(fn)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if st := mustStatus(t, svc, alice); !st.OK {
		t.Errorf("status = %+v, want fully verified after concurrent steps", st)
	}
}

type conflictingRepo struct {
	*repository.MemoryRepository
	conflicts int
}

func (r *conflictingRepo) Save(ctx context.Context, s *domain.Session) error {
	if r.conflicts > 0 {
		r.conflicts--
		return repository.ErrVersionConflict
	}
	return r.MemoryRepository.Save(ctx, s)
}

func TestRecord_RetriesOnVersionConflict(t *testing.T) {
	repo := &conflictingRepo{MemoryRepository: repository.NewMemoryRepository(), conflicts: 2}
	svc := NewService(repo, time.Hour, 0, nil)
	if _, err := svc.RecordOTP(context.Background(), alice); err != nil {
		t.Fatalf("RecordOTP: %v", err)
	}

	repo.conflicts = maxSaveAttempts
	_, err := svc.RecordOTP(context.Background(), alice)
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict after exhausting retries", err)
	}
}

func TestClear(t *testing.T) {
	svc, _, _ := newService(0)
	completeSession(t, svc)
	if err := svc.Clear(context.Background(), alice); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if st := mustStatus(t, svc, alice); st.OK || st.State != domain.StateEmpty {
		t.Errorf("status after Clear = %+v, want empty", st)
	}
}

func TestVerified(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(0)
	ok, err := svc.Verified(ctx, alice)
	if err != nil || ok {
		t.Fatalf("Verified(empty) = %v, %v; want false, nil", ok, err)
	}
	for _, step := range []domain.Step{domain.StepA, domain.StepB} {
		if _, err := svc.RecordWebauthnStep(ctx, alice, step); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.RecordOTP(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if ok, _ := svc.Verified(ctx, alice); !ok {
		t.Error("Verified after all steps = false")
	}
	clk.Advance(4 * time.Hour)
	if ok, _ := svc.Verified(ctx, alice); ok {
		t.Error("Verified at expiry instant = true")
	}
}
