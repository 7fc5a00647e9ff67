package handlers

import (
	"log/slog"
	"net/http"

	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/go-chi/chi/v5"
)

// SettingsHandler serves the platform settings.
type SettingsHandler struct {
	settings *services.SettingsService
	logger   *slog.Logger
}

func NewSettingsHandler(settings *services.SettingsService, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{settings: settings, logger: logger}
}

// SettingsRouter registers the admin settings routes. The caller guards
// them.
func SettingsRouter(r chi.Router, h *SettingsHandler) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)
	r.Get("/system", h.SystemInfo)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := h.settings.Save(r.Context(), settings)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *SettingsHandler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.SystemInfo(r.Context()))
}
