package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
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

func newLimiter() (*MemoryLimiter, *clock) {
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryLimiter(DefaultPolicy).WithClock(clk.Now), clk
}

var aliceVerify = Key{Action: ActionVerify, Scope: ScopeIdentity, Subject: "alice"}

func TestKeyString(t *testing.T) {
	keys := Keys(ActionSend, "alice", "203.0.113.7")
	if got := keys[0].String(); got != "otp:send:identity:alice" {
		t.Errorf("identity key = %q", got)
	}
	if got := keys[1].String(); got != "otp:send:ip:203.0.113.7" {
		t.Errorf("ip key = %q", got)
	}
}

func TestMemoryLimiter_LocksOnFifthFailure(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter()
	start := clk.Now()

	for i := 1; i <= 4; i++ {
		if _, locked, _ := l.Fail(ctx, aliceVerify); locked {
			t.Fatalf("failure %d locked early", i)
		}
		clk.Advance(time.Minute)
	}
	until, locked, err := l.Fail(ctx, aliceVerify)
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Fatal("fifth failure should engage the lock")
	}
	wantUntil := start.Add(4 * time.Minute).Add(15 * time.Minute)
	if !until.Equal(wantUntil) {
		t.Errorf("lockedUntil = %v, want %v", until, wantUntil)
	}

	clk.Advance(5 * time.Minute)
	got, locked, _ := l.Locked(ctx, aliceVerify)
	if !locked || !got.Equal(wantUntil) {
		t.Errorf("Locked = %v, %v; want %v, true", got, locked, wantUntil)
	}
	// Further failures during the lockout return the same expiry.
	got, locked, _ = l.Fail(ctx, aliceVerify)
	if !locked || !got.Equal(wantUntil) {
		t.Errorf("Fail during lockout = %v, %v; want %v, true", got, locked, wantUntil)
	}
}

func TestMemoryLimiter_LockExpires(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter()
	for i := 0; i < 5; i++ {
		_, _, _ = l.Fail(ctx, aliceVerify)
	}
	clk.Advance(15 * time.Minute)
	if _, locked, _ := l.Locked(ctx, aliceVerify); locked {
		t.Error("lock should end at lockedUntil")
	}
	if _, locked, _ := l.Fail(ctx, aliceVerify); locked {
		t.Error("first failure after the lockout should start a fresh window")
	}
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter()
	for i := 0; i < 4; i++ {
		_, _, _ = l.Fail(ctx, aliceVerify)
	}
	clk.Advance(15 * time.Minute)
	for i := 1; i <= 4; i++ {
		if _, locked, _ := l.Fail(ctx, aliceVerify); locked {
			t.Fatalf("failure %d of the new window locked", i)
		}
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter()
	for i := 0; i < 5; i++ {
		_, _, _ = l.Fail(ctx, aliceVerify)
	}
	others := []Key{
		{Action: ActionSend, Scope: ScopeIdentity, Subject: "alice"},
		{Action: ActionVerify, Scope: ScopeIdentity, Subject: "bob"},
		{Action: ActionVerify, Scope: ScopeIP, Subject: "alice"},
	}
	for _, k := range others {
		if _, locked, _ := l.Locked(ctx, k); locked {
			t.Errorf("%s should not be locked", k)
		}
	}
}

func TestMemoryLimiter_ResetClearsLock(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter()
	for i := 0; i < 5; i++ {
		_, _, _ = l.Fail(ctx, aliceVerify)
	}
	if err := l.Reset(ctx, aliceVerify); err != nil {
		t.Fatal(err)
	}
	if _, locked, _ := l.Locked(ctx, aliceVerify); locked {
		t.Error("Reset should clear the lock")
	}
}

func TestMemoryLimiter_ConcurrentFailuresLockOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter()
	var wg sync.WaitGroup
	var mu sync.Mutex
	untils := map[time.Time]int{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if until, locked, _ := l.Fail(ctx, aliceVerify); locked {
				mu.Lock()
				untils[until]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(untils) != 1 {
		t.Errorf("distinct lock expiries = %d, want 1", len(untils))
	}
	for _, n := range untils {
		if n != 16 {
			t.Errorf("locked responses = %d, want 16", n)
		}
	}
}
