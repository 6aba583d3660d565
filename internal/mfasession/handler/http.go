// Package handler serves the MFA session status and sign-out endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/mfasession"
	"passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

// SessionService is the subset of mfasession.Service used by the handler.
type SessionService interface {
	CheckStatus(ctx context.Context, identityID string) (mfasession.Status, error)
	Clear(ctx context.Context, identityID string) error
}

// Handler serves /v1/mfa/status and /v1/mfa/session.
type Handler struct {
	svc SessionService
	log *zap.Logger
}

// New returns a session handler.
func New(svc SessionService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// SessionView is the JSON snapshot of a session. Timestamps are omitted when unset.
type SessionView struct {
	State           domain.State `json:"state"`
	OTPVerifiedAt   *time.Time   `json:"otp_verified_at,omitempty"`
	StepAVerifiedAt *time.Time   `json:"step_a_verified_at,omitempty"`
	StepBVerifiedAt *time.Time   `json:"step_b_verified_at,omitempty"`
	FullyVerifiedAt *time.Time   `json:"fully_verified_at,omitempty"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
}

// StatusResponse is the body of GET /v1/mfa/status.
type StatusResponse struct {
	OK      bool        `json:"ok"`
	Session SessionView `json:"session"`
}

// View renders sess as seen at now. A nil session renders as empty.
func View(sess *domain.Session, now time.Time) SessionView {
	v := SessionView{State: sess.StateAt(now)}
	if sess == nil {
		return v
	}
	v.OTPVerifiedAt = sess.OTPVerifiedAt
	v.StepAVerifiedAt = sess.StepAVerifiedAt
	v.StepBVerifiedAt = sess.StepBVerifiedAt
	v.FullyVerifiedAt = sess.FullyVerifiedAt
	exp := sess.ExpiresAt
	v.ExpiresAt = &exp
	return v
}

// Status returns whether the caller holds a fully verified session, with a snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	st, err := h.svc.CheckStatus(r.Context(), caller.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	v := SessionView{State: st.State}
	if st.Session != nil {
		v = View(st.Session, time.Now().UTC())
		v.State = st.State
	}
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{OK: st.OK, Session: v})
}

// Clear drops the caller's session.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	if err := h.svc.Clear(r.Context(), caller.ID); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
