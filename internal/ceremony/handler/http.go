// Package handler serves the passkey registration, authentication and credential management endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"go.uber.org/zap"

	"passkey-gate/internal/ceremony"
	credentialdomain "passkey-gate/internal/credential/domain"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	sessionhandler "passkey-gate/internal/mfasession/handler"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

// CeremonyService is the subset of ceremony.Service used by the handler.
type CeremonyService interface {
	BeginRegistration(ctx context.Context, req ceremony.Request) (*protocol.CredentialCreation, error)
	VerifyRegistration(ctx context.Context, req ceremony.Request, raw []byte) (*credentialdomain.Credential, error)
	BeginAuthentication(ctx context.Context, req ceremony.Request) (*protocol.CredentialAssertion, error)
	VerifyAuthentication(ctx context.Context, req ceremony.Request, raw []byte, stepTag string) (*ceremony.Result, error)
	ListCredentials(ctx context.Context, req ceremony.Request) ([]*credentialdomain.Credential, error)
	RevokeCredential(ctx context.Context, req ceremony.Request, credentialID string) error
}

// Handler serves /v1/webauthn/*.
type Handler struct {
	svc CeremonyService
	log *zap.Logger
}

// New returns a ceremony handler.
func New(svc CeremonyService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// CredentialView is the JSON form of a stored credential. The public key is never exposed.
type CredentialView struct {
	ID             string     `json:"id"`
	DeviceLabel    string     `json:"device_label"`
	Transports     []string   `json:"transports"`
	SignCount      uint32     `json:"sign_count"`
	BackupEligible bool       `json:"backup_eligible"`
	BackupState    bool       `json:"backup_state"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

// ViewOf renders c for the wire.
func ViewOf(c *credentialdomain.Credential) CredentialView {
	transports := c.Transports
	if transports == nil {
		transports = []string{}
	}
	return CredentialView{
		ID:             c.EncodedID(),
		DeviceLabel:    c.DeviceLabel,
		Transports:     transports,
		SignCount:      c.SignCount,
		BackupEligible: c.BackupEligible,
		BackupState:    c.BackupState,
		Active:         c.IsActive,
		CreatedAt:      c.CreatedAt,
		LastUsedAt:     c.LastUsedAt,
		RevokedAt:      c.RevokedAt,
	}
}

type registrationVerifyRequest struct {
	Credential json.RawMessage `json:"credential"`
}

type registrationVerifyResponse struct {
	Verified   bool           `json:"verified"`
	Credential CredentialView `json:"credential"`
}

type authenticationVerifyRequest struct {
	Step       string          `json:"step"`
	Credential json.RawMessage `json:"credential"`
}

type authenticationVerifyResponse struct {
	Verified         bool                        `json:"verified"`
	Credential       CredentialView              `json:"credential"`
	Step             sessiondomain.Step          `json:"step,omitempty"`
	CounterSupported bool                        `json:"counter_supported"`
	Session          *sessionhandler.SessionView `json:"session,omitempty"`
}

type listResponse struct {
	Credentials []CredentialView `json:"credentials"`
}

func (h *Handler) request(r *http.Request) (ceremony.Request, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return ceremony.Request{}, false
	}
	return ceremony.Request{
		Caller: caller,
		Origin: middleware.DeclaredOrigin(r),
		Client: middleware.ClientFrom(r.Context()),
	}, true
}

// RegistrationOptions issues creation options for a new passkey.
func (h *Handler) RegistrationOptions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	creation, err := h.svc.BeginRegistration(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, creation)
}

// RegistrationVerify stores the attested credential.
func (h *Handler) RegistrationVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	var body registrationVerifyRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if len(body.Credential) == 0 {
		httpx.WriteError(w, h.log, errs.WithReason(errs.ErrBadRequest, "credential is required"))
		return
	}
	cred, err := h.svc.VerifyRegistration(r.Context(), req, body.Credential)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, registrationVerifyResponse{Verified: true, Credential: ViewOf(cred)})
}

// AuthenticationOptions issues request options limited to the caller's active passkeys.
func (h *Handler) AuthenticationOptions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	assertion, err := h.svc.BeginAuthentication(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, assertion)
}

// AuthenticationVerify checks an assertion and optionally records an MFA step.
func (h *Handler) AuthenticationVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	var body authenticationVerifyRequest
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if len(body.Credential) == 0 {
		httpx.WriteError(w, h.log, errs.WithReason(errs.ErrBadRequest, "credential is required"))
		return
	}
	res, err := h.svc.VerifyAuthentication(r.Context(), req, body.Credential, body.Step)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	resp := authenticationVerifyResponse{
		Verified:         true,
		Credential:       ViewOf(res.Credential),
		Step:             res.Step,
		CounterSupported: res.CounterSupported,
	}
	if res.Session != nil {
		v := sessionhandler.View(res.Session, time.Now().UTC())
		resp.Session = &v
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// List returns the caller's passkeys, revoked ones included.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	creds, err := h.svc.ListCredentials(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	out := listResponse{Credentials: make([]CredentialView, 0, len(creds))}
	for _, c := range creds {
		out.Credentials = append(out.Credentials, ViewOf(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Revoke deactivates the credential named by the credentialID path parameter.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(r)
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	if err := h.svc.RevokeCredential(r.Context(), req, chi.URLParam(r, "credentialID")); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
