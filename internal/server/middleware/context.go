// Package middleware holds the HTTP middleware that authenticates callers and records request metadata.
package middleware

import (
	"context"

	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/identity/domain"
)

type contextKey struct{ name string }

var (
	callerKey = contextKey{"caller"}
	clientKey = contextKey{"client"}
)

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, c domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFrom returns the caller from context and true if set; otherwise a zero Caller, false.
func CallerFrom(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey).(domain.Caller)
	return c, ok && c.ID != ""
}

// WithClient returns a context carrying the server-observed client metadata.
func WithClient(ctx context.Context, c auditdomain.Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// ClientFrom returns the client metadata from context, or a zero Client.
func ClientFrom(ctx context.Context) auditdomain.Client {
	c, _ := ctx.Value(clientKey).(auditdomain.Client)
	return c
}
