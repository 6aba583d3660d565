// Package handler serves the admin API endpoints that require a fully verified MFA session.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/mfasession"
	sessionhandler "passkey-gate/internal/mfasession/handler"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/platform/rbac"
	"passkey-gate/internal/policy/engine"
)

// SessionStatus is the subset of mfasession.Service used by the handler.
type SessionStatus interface {
	rbac.MFAStatusChecker
	CheckStatus(ctx context.Context, identityID string) (mfasession.Status, error)
}

// Handler serves /v1/admin/*.
type Handler struct {
	authz    engine.Authorizer
	sessions SessionStatus
	log      *zap.Logger
}

// New returns an admin handler.
func New(authz engine.Authorizer, sessions SessionStatus, log *zap.Logger) *Handler {
	return &Handler{authz: authz, sessions: sessions, log: log}
}

type sessionResponse struct {
	Identity struct {
		ID    string      `json:"id"`
		Email string      `json:"email"`
		Role  domain.Role `json:"role"`
	} `json:"identity"`
	Session sessionhandler.SessionView `json:"session"`
}

// Session returns the caller and their verified session. Callers without a live, fully verified
// session get 403 not_authorized.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	caller, err := rbac.RequireVerifiedAdmin(r.Context(), h.authz, h.sessions)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	st, err := h.sessions.CheckStatus(r.Context(), caller.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var resp sessionResponse
	resp.Identity.ID = caller.ID
	resp.Identity.Email = caller.Email
	resp.Identity.Role = caller.Role
	resp.Session = sessionhandler.View(st.Session, time.Now().UTC())
	httpx.WriteJSON(w, http.StatusOK, resp)
}
