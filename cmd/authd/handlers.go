package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkarpis/authcore"
	"github.com/mkarpis/authcore/middleware"
	"github.com/mkarpis/authcore/store"
)

func newMux(engine *authcore.Engine, log *zap.Logger) *http.ServeMux {
	h := &handlers{engine: engine, log: log}
	mux := http.NewServeMux()

	public := func(next http.HandlerFunc) http.Handler {
		return middleware.ClientAddr(next)
	}
	limited := func(class string, next http.HandlerFunc) http.Handler {
		return middleware.ClientAddr(middleware.RateLimit(engine, class)(next))
	}
	guarded := func(next http.HandlerFunc) http.Handler {
		return middleware.ClientAddr(middleware.Guard(engine)(next))
	}

	// The login path enforces its own admission inside the engine;
	// wrapping it again would double-count attempts.
	mux.Handle("POST /v1/login", public(h.login))
	mux.Handle("POST /v1/mfa/verify", limited(middleware.ClassLogin, h.verifyMFA))
	mux.Handle("POST /v1/token/refresh", public(h.refresh))
	mux.Handle("POST /v1/logout", public(h.logout))
	mux.Handle("GET /v1/public-key", public(h.publicKey))

	mux.Handle("POST /v1/mfa/setup", guarded(h.setupMFA))
	mux.Handle("POST /v1/mfa/activate", guarded(h.activateMFA))
	mux.Handle("POST /v1/mfa/disable", guarded(h.disableMFA))
	mux.Handle("GET /v1/mfa/backup-codes", guarded(h.remainingBackupCodes))
	mux.Handle("POST /v1/mfa/backup-codes/regenerate", guarded(h.regenerateBackupCodes))

	mux.Handle("GET /v1/sessions", guarded(h.listSessions))
	mux.Handle("DELETE /v1/sessions/{id}", guarded(h.invalidateSession))
	mux.Handle("DELETE /v1/sessions", guarded(h.invalidateAllSessions))
	mux.Handle("POST /v1/tokens/revoke-all", guarded(h.revokeAllTokens))

	mux.Handle("POST /v1/accounts/{id}/unlock", guarded(h.unlockAccount))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

type handlers struct {
	engine *authcore.Engine
	log    *zap.Logger
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mfaVerifyRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.engine.VerifyMFA(r.Context(), req.MFAToken, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) publicKey(w http.ResponseWriter, _ *http.Request) {
	pem, err := h.engine.PublicKeyPEM()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write([]byte(pem))
}

func (h *handlers) setupMFA(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	setup, err := h.engine.SetupMFA(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (h *handlers) activateMFA(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	activation, err := h.engine.ActivateMFA(r.Context(), identity.AccountID.String(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activation)
}

func (h *handlers) disableMFA(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.DisableMFA(r.Context(), identity.AccountID.String(), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) remainingBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	remaining, err := h.engine.RemainingBackupCodes(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

func (h *handlers) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	codes, err := h.engine.RegenerateBackupCodes(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	sessions, err := h.engine.Sessions(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *handlers) invalidateSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.InvalidateSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) invalidateAllSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	dropped, err := h.engine.InvalidateAllSessions(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": dropped})
}

func (h *handlers) revokeAllTokens(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	revoked, err := h.engine.RevokeAllTokens(r.Context(), identity.AccountID.String())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

func (h *handlers) unlockAccount(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	if !hasRole(identity, "admin") {
		h.writeError(w, authcore.ErrAccessTokenInvalid)
		return
	}
	if err := h.engine.UnlockAccount(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func hasRole(identity *authcore.Identity, role string) bool {
	if identity == nil {
		return false
	}
	for _, r := range identity.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to stable codes and statuses.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	code := authcore.CodeOf(err)
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, authcore.ErrAccountLocked):
		status = http.StatusLocked
	case errors.Is(err, authcore.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, authcore.ErrAccountNotFound),
		errors.Is(err, authcore.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, authcore.ErrMFAAlreadyEnabled),
		errors.Is(err, authcore.ErrMFANotEnabled),
		errors.Is(err, authcore.ErrMFANotProvisioned):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
		code = "unavailable"
		h.log.Error("store unavailable", zap.Error(err))
	case code == "internal":
		status = http.StatusInternalServerError
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": code})
}
