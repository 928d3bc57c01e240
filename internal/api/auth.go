package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/auth"
	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/store"
)

// AuthHandler handles unlocking and logging out.
type AuthHandler struct {
	DB        *sqlx.DB
	JWTSecret string
}

type unlockRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type unlockResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Unlock handles POST /api/auth/unlock.
func (h *AuthHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Code == "" {
		jsonError(w, http.StatusBadRequest, "name and code required")
		return
	}

	user, err := store.GetUserByName(r.Context(), h.DB, req.Name)
	if err != nil {
		writeError(w, r, "unlock", err)
		return
	}

	var hash *string
	if user != nil {
		hash = &user.CodeHash
	}
	if !auth.CheckCodeTimed(hash, req.Code) {
		slog.Warn("unlock failed", "name", req.Name, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, claims, err := auth.IssueToken(h.JWTSecret, user, time.Now())
	if err != nil {
		writeError(w, r, "issuing token", err)
		return
	}

	slog.Info("user unlocked", "user", user.Name, "role", user.Role)
	jsonResponse(w, http.StatusOK, unlockResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	})
}

// Logout handles POST /api/auth/logout by revoking the current token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, r, "revoking token", err)
		return
	}

	slog.Info("user logged out", "user", claims.Name)
	w.WriteHeader(http.StatusNoContent)
}
