package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/contagem-app/contagem/internal/auth"
	"github.com/contagem-app/contagem/internal/model"
	"github.com/contagem-app/contagem/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB *sqlx.DB
}

type createUserRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Role string `json:"role"`
}

type resetCodeRequest struct {
	Code string `json:"code"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, "listing users", err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "role must be admin or user")
		return
	}
	if err := model.ValidateCode(req.Code); err != nil {
		writeError(w, r, "creating user", err)
		return
	}

	hash, err := auth.HashCode(req.Code)
	if err != nil {
		writeError(w, r, "creating user", err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Name, hash, req.Role)
	if errors.Is(err, model.ErrConflict) {
		jsonError(w, http.StatusConflict, "name already in use")
		return
	}
	if err != nil {
		writeError(w, r, "creating user", err)
		return
	}

	slog.Info("user created", "user", user.Name, "role", user.Role, "by", GetClaims(r.Context()).Name)
	jsonResponse(w, http.StatusCreated, user)
}

// ResetCode handles PUT /api/users/{id}/code.
func (h *UsersHandler) ResetCode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidateCode(req.Code); err != nil {
		writeError(w, r, "resetting code", err)
		return
	}

	hash, err := auth.HashCode(req.Code)
	if err != nil {
		writeError(w, r, "resetting code", err)
		return
	}
	if err := store.UpdateUserCode(r.Context(), h.DB, id, hash); err != nil {
		writeError(w, r, "resetting code", err)
		return
	}

	slog.Info("unlock code reset", "user_id", id, "by", GetClaims(r.Context()).Name)
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, "deleting user", err)
		return
	}

	slog.Info("user deleted", "user_id", id, "by", claims.Name)
	w.WriteHeader(http.StatusNoContent)
}
