package handlers

import (
	"log/slog"
	"net/http"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/go-chi/chi/v5"
)

const selfDeleteMessage = "Você não pode excluir sua própria conta."

// UserHandler provides the user administration endpoints.
type UserHandler struct {
	users  *services.UserService
	logger *slog.Logger
}

func NewUserHandler(users *services.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, logger: logger}
}

// UserRouter registers the admin user routes. The caller guards them.
func UserRouter(r chi.Router, h *UserHandler) {
	r.Get("/", h.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Put("/", h.UpdateUser)
		r.Delete("/", h.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(profiles))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in services.ProfileUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := h.users.Update(r.Context(), chi.URLParam(r, "userID"), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// DeleteUser removes the account and revokes its sessions. Administrators
// cannot delete themselves.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if user := stateOf(r).User; user != nil && user.ID == id {
		writeError(w, http.StatusBadRequest, selfDeleteMessage)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
