package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/apperrors"
	"github.com/ekaya-inc/chat-gateway/pkg/audit"
	"github.com/ekaya-inc/chat-gateway/pkg/auth"
)

// GoogleLoginRequest is the request body for POST /auth/google.
type GoogleLoginRequest struct {
	Credential string `json:"credential"`
}

// AuthHandler handles Google sign-in and the login session.
type AuthHandler struct {
	verifier   auth.TokenVerifier
	sessions   *auth.SessionStore
	middleware *auth.Middleware
	auditor    *audit.SecurityAuditor
	logger     *zap.Logger
}

// NewAuthHandler creates a new auth handler. A nil verifier disables
// /auth/google with 503.
func NewAuthHandler(verifier auth.TokenVerifier, sessions *auth.SessionStore, middleware *auth.Middleware, auditor *audit.SecurityAuditor, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		verifier:   verifier,
		sessions:   sessions,
		middleware: middleware,
		auditor:    auditor,
		logger:     logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/google", h.Google)
	mux.HandleFunc("GET /auth/me", h.middleware.RequireIdentity(h.Me))
	mux.HandleFunc("POST /auth/logout", h.Logout)
}

// Google handles POST /auth/google: verifies the ID token and starts a session.
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		WriteError(w, fmt.Errorf("%w: google sign-in", apperrors.ErrNotConfigured), h.logger)
		return
	}

	var req GoogleLoginRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	claims, err := h.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		h.auditor.LogSignInRejected(r.Context(), err.Error(), r.RemoteAddr)
		if err := ErrorResponse(w, http.StatusUnauthorized, "Invalid Google credential"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	id := auth.IdentityFromClaims(claims)
	if err := h.sessions.Login(w, r, id); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "Failed to start session"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.auditor.LogSignIn(r.Context(), id, r.RemoteAddr)
	if err := WriteSuccess(w, http.StatusOK, id); err != nil {
		h.logger.Error("Failed to encode login response", zap.Error(err))
	}
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.GetIdentity(r.Context())
	if err := WriteSuccess(w, http.StatusOK, id); err != nil {
		h.logger.Error("Failed to encode identity", zap.Error(err))
	}
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.logger.Error("Failed to clear session", zap.Error(err))
	}
	h.auditor.LogSignOut(r.Context(), r.RemoteAddr)
	if err := WriteSuccess(w, http.StatusOK, map[string]bool{"logged_out": true}); err != nil {
		h.logger.Error("Failed to encode logout response", zap.Error(err))
	}
}
