package handlers

import (
	"log/slog"
	"net/http"
	"time"
)

// NewReloadHandler re-reads the harvester config. A config that fails to load
// leaves the running one in place and answers 500.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Info("config reload requested", "remote_addr", r.RemoteAddr)

		if err := reloader.Reload(); err != nil {
			logger.Error("config reload failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to reload configuration: "+err.Error())
			return
		}

		logger.Info("config reloaded", "duration", time.Since(start))
		w.WriteHeader(http.StatusNoContent)
	}
}
