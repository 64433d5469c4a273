package handlers

import (
	"net/http"
	"strings"

	"boxoffice/backend/internal/auth"

	"golang.org/x/crypto/bcrypt"
)

type adminAuthRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

type adminAuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

// AuthAdmin exchanges the configured admin credentials for a bearer token.
func (h *Handler) AuthAdmin(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req adminAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("action", "action", "auth_admin", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := h.validator.Struct(req); err != nil {
		logger.Warn("action", "action", "auth_admin", "status", "invalid_credentials")
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if h.cfg.AdminLogin == "" || h.cfg.AdminPassHash == "" {
		logger.Warn("action", "action", "auth_admin", "status", "disabled")
		writeError(w, http.StatusUnauthorized, "admin login disabled")
		return
	}
	if req.Username != h.cfg.AdminLogin {
		logger.Warn("action", "action", "auth_admin", "status", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPassHash), []byte(req.Password)); err != nil {
		logger.Warn("action", "action", "auth_admin", "status", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := auth.SignAdminToken(h.cfg.JWTSecret, req.Username, h.now())
	if err != nil {
		logger.Error("action", "action", "auth_admin", "status", "token_error", "error", err)
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	logger.Info("action", "action", "auth_admin", "status", "success")
	writeJSON(w, http.StatusOK, adminAuthResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}
