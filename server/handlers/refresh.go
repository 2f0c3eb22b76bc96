package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

// RefreshResponse is returned when a refresh was started.
type RefreshResponse struct {
	RunID string `json:"run_id"`
}

// ConflictResponse is returned when a refresh is already in flight.
type ConflictResponse struct {
	Error    string                 `json:"error"`
	RunID    string                 `json:"run_id"`
	Progress *cache.RefreshProgress `json:"progress"`
}

// RefreshHandler handles requests to trigger a refresh.
type RefreshHandler struct {
	logger    *slog.Logger
	refresher Refresher
}

// NewRefreshHandler creates a new RefreshHandler.
func NewRefreshHandler(logger *slog.Logger, r Refresher) *RefreshHandler {
	return &RefreshHandler{
		logger:    logger,
		refresher: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID, err := h.refresher.Start()
	if err != nil {
		var running *orchestrator.AlreadyRunningError
		if errors.As(err, &running) {
			writeJSON(w, http.StatusConflict, ConflictResponse{
				Error:    err.Error(),
				RunID:    running.RunID,
				Progress: running.Progress,
			})
			return
		}
		h.logger.Error("failed to start refresh", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, RefreshResponse{RunID: runID})
}
