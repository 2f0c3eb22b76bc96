package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

const maxSettingsBody = 64 << 10

// SettingsHandler reads (GET) and replaces (PUT) the user settings.
type SettingsHandler struct {
	logger *slog.Logger
	store  SettingsStore
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(logger *slog.Logger, s SettingsStore) *SettingsHandler {
	return &SettingsHandler{
		logger: logger,
		store:  s,
	}
}

// ServeHTTP implements http.Handler.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.LoadSettings(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var s store.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SaveSettings(r.Context(), s); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("settings updated", "show_avatars", s.ShowAvatars, "fetch_limit", s.FetchLimit)
	writeJSON(w, http.StatusOK, s)
}
