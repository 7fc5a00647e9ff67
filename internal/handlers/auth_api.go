package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

const forgotPasswordMessage = "Se o email estiver cadastrado, você receberá um link para redefinir sua senha."

// AuthHandler provides the JSON session endpoints.
type AuthHandler struct {
	auth     *Auth
	account  *services.AccountService
	settings *services.SettingsService
	users    *services.UserService
	baseURL  string
	logger   *slog.Logger
}

func NewAuthHandler(auth *Auth, account *services.AccountService, settings *services.SettingsService, users *services.UserService, baseURL string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		auth:     auth,
		account:  account,
		settings: settings,
		users:    users,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// AuthRouter registers the auth routes. limit throttles the endpoints that
// take credentials.
func AuthRouter(r chi.Router, h *AuthHandler, limit func(http.Handler) http.Handler) {
	r.With(limit).Post("/register", h.Register)
	r.With(limit).Post("/login", h.Login)
	r.With(limit).Post("/forgot-password", h.ForgotPassword)
	r.With(limit).Post("/reset-password", h.ResetPassword)
	r.Post("/confirm", h.Confirm)
	r.Post("/logout", h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(h.auth.APIRequireSession)
		r.Get("/me", h.Me)
		r.With(limit).Post("/change-password", h.ChangePassword)
		r.Get("/events", h.Events)
	})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type RegisterResponse struct {
	Session              *types.Session `json:"session"`
	User                 types.User     `json:"user"`
	ConfirmationRequired bool           `json:"confirmation_required"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MeResponse struct {
	User    types.User     `json:"user"`
	Profile *types.Profile `json:"profile,omitempty"`
	IsAdmin bool           `json:"is_admin"`
}

type ForgotPasswordRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

type ResetPasswordRequest struct {
	services.ResetPasswordInput
	// AccessToken may be sent instead of the raw fragment.
	AccessToken string `json:"access_token"`
}

type ConfirmRequest struct {
	Token string `json:"token"`
}

// Register creates an account. When email verification is on, no session is
// returned until the confirmation link is followed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !settings.EnableUserRegistration {
		writeError(w, http.StatusForbidden, "O cadastro de novos usuários está desabilitado")
		return
	}

	session, user, err := clientOf(r).SignUp(r.Context(), identity.SignUpParams{
		Email:               req.Email,
		Password:            req.Password,
		Username:            strings.TrimSpace(req.Username),
		FullName:            strings.TrimSpace(req.FullName),
		RequireConfirmation: settings.RequireEmailVerification,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Session:              session,
		User:                 user,
		ConfirmationRequired: session == nil,
	})
}

// Login exchanges credentials for a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	session, err := clientOf(r).SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout ends the caller's session. Local state and the browser session are
// cleared even when the store fails, and the failure is reported.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ra := authFrom(r)
	if ra == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	err := ra.auth.SignOut(r.Context())
	h.auth.forget(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user with the profile and admin flag.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	state := stateOf(r)
	if state.User == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := MeResponse{User: *state.User, IsAdmin: state.IsAdmin}
	profile, err := h.users.Get(r.Context(), state.User.ID)
	switch {
	case err == nil:
		resp.Profile = &profile
	case !errors.Is(err, store.ErrNotFound):
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForgotPassword sends a recovery link. Known and unknown addresses get the
// same answer.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := clientOf(r).ResetPasswordForEmail(r.Context(), req.Email, h.redirectTarget(req.RedirectTo)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: forgotPasswordMessage})
}

// redirectTarget keeps recovery links on this site.
func (h *AuthHandler) redirectTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || h.baseURL == "" {
		return ""
	}
	if target == h.baseURL || strings.HasPrefix(target, h.baseURL+"/") {
		return target
	}
	return ""
}

// ResetPassword sets a new password from a recovery link. The recovery
// session is closed afterwards; the visitor signs in again.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in := req.ResetPasswordInput
	if in.Fragment == "" && req.AccessToken != "" {
		in.Fragment = "access_token=" + req.AccessToken + "&type=" + string(types.TokenRecovery)
	}

	client := clientOf(r)
	if err := h.account.ResetPassword(r.Context(), client, in); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := client.SignOut(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "close recovery session", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Senha redefinida com sucesso!"})
}

// ChangePassword updates the password of the signed-in user after checking
// the current one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in services.ChangePasswordInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.account.ChangePassword(r.Context(), clientOf(r), in); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Senha alterada com sucesso!"})
}

// Confirm verifies an email address and returns the new session.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := clientOf(r).ConfirmEmail(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
