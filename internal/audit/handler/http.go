// Package handler serves the caller's own audit trail.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/audit/domain"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/platform/rbac"
	"passkey-gate/internal/policy/engine"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Lister is the read side of the audit repository.
type Lister interface {
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*domain.Entry, error)
}

// Handler serves GET /v1/audit.
type Handler struct {
	repo  Lister
	authz engine.Authorizer
	log   *zap.Logger
}

// New returns an audit handler.
func New(repo Lister, authz engine.Authorizer, log *zap.Logger) *Handler {
	return &Handler{repo: repo, authz: authz, log: log}
}

type entryView struct {
	ID            string            `json:"id"`
	EventKind     domain.EventKind  `json:"event_kind"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	IP            string            `json:"ip,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type listResponse struct {
	Entries []entryView `json:"entries"`
}

// List returns the caller's most recent entries, newest first. ?limit= caps the count (default 50, max 200).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := rbac.RequireAdmin(r.Context(), h.authz)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httpx.WriteError(w, h.log, errs.WithReason(errs.ErrBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxLimit)
	}
	entries, err := h.repo.ListByIdentity(r.Context(), caller.ID, limit)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	out := listResponse{Entries: make([]entryView, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryView{
			ID:            e.ID,
			EventKind:     e.EventKind,
			FailureReason: e.FailureReason,
			UserAgent:     e.UserAgent,
			IP:            e.IP,
			Metadata:      e.Metadata,
			CreatedAt:     e.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
