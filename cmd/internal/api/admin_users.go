package api

import (
	"net/http"

	"pdfgate/cmd/identity"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, h.log, "accounts.list.fail", err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: out})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, shared, err := h.accounts.CreateUser(r.Context(), identity.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Now:      h.now(),
	})
	if err != nil {
		writeDomainError(w, h.log, "accounts.user.create.fail", err)
		return
	}

	claims, _ := claimsFromContext(r.Context())
	h.audit(r, "admin.user.create", claims.UserID, claims.SessionID, map[string]any{
		"target_user_id": u.ID,
		"shared":         shared,
	})
	writeJSON(w, http.StatusCreated, createUserResponse{User: toUserResponse(u), Shared: shared})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.accounts.DeleteUser(r.Context(), id, h.now()); err != nil {
		writeDomainError(w, h.log, "accounts.user.delete.fail", err)
		return
	}

	claims, _ := claimsFromContext(r.Context())
	h.audit(r, "admin.user.delete", claims.UserID, claims.SessionID, map[string]any{"target_user_id": id})
	w.WriteHeader(http.StatusNoContent)
}
