// Package engine evaluates the authorization policy that gates ceremonies and the admin API.
package engine

import (
	"context"

	"passkey-gate/internal/identity/domain"
)

// Action is what the caller is attempting.
type Action string

const (
	// ActionCeremony covers every WebAuthn ceremony and credential management call.
	ActionCeremony Action = "ceremony"
	// ActionAdminAPI covers endpoints that require a fully verified MFA session.
	ActionAdminAPI Action = "admin_api"
)

// Input is the document passed to the policy.
type Input struct {
	Caller domain.Caller
	Action Action
	// MFAVerified is the live MFA session status. Only consulted for ActionAdminAPI.
	MFAVerified bool
}

// Decision is the policy result. Reason names the failing rule when Allow is false.
type Decision struct {
	Allow  bool
	Reason string
}

// Authorizer decides whether a caller may perform an action. Any evaluation error is a deny.
type Authorizer interface {
	Authorize(ctx context.Context, in Input) (Decision, error)
}

var healthCheckCaller = domain.Caller{ID: "00000000-0000-0000-0000-000000000000", Role: domain.RoleAdmin}
