// Package ratelimit counts OTP attempts per identity and per source IP and enforces fixed-duration lockouts.
package ratelimit

import (
	"context"
	"time"
)

// Action is the OTP operation being limited. Each action has its own counters.
type Action string

const (
	ActionSend   Action = "send"
	ActionVerify Action = "verify"
)

// Scope is what a counter is keyed by.
type Scope string

const (
	ScopeIdentity Scope = "identity"
	ScopeIP       Scope = "ip"
)

// Key identifies one counter.
type Key struct {
	Action  Action
	Scope   Scope
	Subject string
}

// String renders the storage key, e.g. "otp:verify:ip:203.0.113.7".
func (k Key) String() string {
	return "otp:" + string(k.Action) + ":" + string(k.Scope) + ":" + k.Subject
}

// Keys returns the identity-keyed and IP-keyed counters for action.
func Keys(action Action, identityID, ip string) []Key {
	return []Key{
		{Action: action, Scope: ScopeIdentity, Subject: identityID},
		{Action: action, Scope: ScopeIP, Subject: ip},
	}
}

// Policy configures a limiter.
type Policy struct {
	// MaxAttempts within Window engage the lockout.
	MaxAttempts int
	// Window starts at the first counted attempt. An expired window resets the count.
	Window time.Duration
	// Lockout is how long a key stays locked.
	Lockout time.Duration
}

// DefaultPolicy is 5 attempts per 15 minutes with a 15 minute lockout.
var DefaultPolicy = Policy{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute}

// Limiter tracks attempts and lockouts. An active lockout is checked before any window logic.
type Limiter interface {
	// Locked returns the lockout expiry if key is currently locked.
	Locked(ctx context.Context, key Key) (until time.Time, locked bool, err error)
	// Fail counts one attempt against key. When the attempt engages the lockout, or key was already
	// locked, it returns the lockout expiry and true. A locked key's expiry is never extended.
	Fail(ctx context.Context, key Key) (until time.Time, locked bool, err error)
	// Reset clears the count and any lockout on key.
	Reset(ctx context.Context, key Key) error
}
