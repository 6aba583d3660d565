// Package rbac gates HTTP handlers on the caller's role and MFA session status via the policy engine.
package rbac

import (
	"context"
	"fmt"

	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/policy/engine"
	"passkey-gate/internal/server/middleware"
)

// MFAStatusChecker reports whether an identity currently holds a fully verified MFA session.
type MFAStatusChecker interface {
	Verified(ctx context.Context, identityID string) (bool, error)
}

// RequireAdmin ensures the caller is authenticated and allowed to run ceremonies.
// Returns ErrUnauthenticated without a caller and ErrNotAuthorized on a deny or a policy error.
func RequireAdmin(ctx context.Context, authz engine.Authorizer) (domain.Caller, error) {
	caller, ok := middleware.CallerFrom(ctx)
	if !ok {
		return domain.Caller{}, errs.ErrUnauthenticated
	}
	d, err := authz.Authorize(ctx, engine.Input{Caller: caller, Action: engine.ActionCeremony})
	if err != nil {
		return domain.Caller{}, errs.WithReason(errs.ErrNotAuthorized, fmt.Sprintf("policy-error: %v", err))
	}
	if !d.Allow {
		return domain.Caller{}, errs.WithReason(errs.ErrNotAuthorized, d.Reason)
	}
	return caller, nil
}

// RequireVerifiedAdmin ensures the caller is an admin with a live, fully verified MFA session.
// A status lookup failure is returned as is so it surfaces as an internal error.
func RequireVerifiedAdmin(ctx context.Context, authz engine.Authorizer, status MFAStatusChecker) (domain.Caller, error) {
	caller, ok := middleware.CallerFrom(ctx)
	if !ok {
		return domain.Caller{}, errs.ErrUnauthenticated
	}
	verified, err := status.Verified(ctx, caller.ID)
	if err != nil {
		return domain.Caller{}, fmt.Errorf("mfa status: %w", err)
	}
	d, err := authz.Authorize(ctx, engine.Input{Caller: caller, Action: engine.ActionAdminAPI, MFAVerified: verified})
	if err != nil {
		return domain.Caller{}, errs.WithReason(errs.ErrNotAuthorized, fmt.Sprintf("policy-error: %v", err))
	}
	if !d.Allow {
		return domain.Caller{}, errs.WithReason(errs.ErrNotAuthorized, d.Reason)
	}
	return caller, nil
}
