package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/storage"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
)

const maxJSONBody = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// errorStatus maps domain errors to a status and the message shown to the
// visitor. Unknown errors are internal.
func errorStatus(err error) (int, string) {
	switch {
	case services.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Não encontrado"
	case errors.Is(err, identity.ErrUserAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Registro duplicado"
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrNoSession):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return http.StatusForbidden, "Email not confirmed"
	case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidLink):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotImplemented):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "Tipo de imagem não suportado"
	case errors.Is(err, storage.ErrDisabled):
		return http.StatusServiceUnavailable, "Armazenamento de imagens desabilitado"
	default:
		return http.StatusInternalServerError, "Erro interno. Tente novamente mais tarde."
	}
}

// writeServiceError answers err with its mapped status and logs internal
// failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented && status != http.StatusServiceUnavailable {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, message)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization header")
	}
	return token, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
