package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

// NewHistoryHandler lists finished runs, most recent first. ?state= keeps runs
// in one state and ?limit= caps the number returned.
func NewHistoryHandler(logger *slog.Logger, provider HistoryProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		runs, err := provider.LoadHistory(r.Context())
		if err != nil {
			logger.Error("loading run history", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		out := make([]store.RunRecord, 0, len(runs))
		for _, run := range runs {
			if state := q.Get("state"); state != "" && run.State != state {
				continue
			}
			out = append(out, run)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// NewHistoryLogsHandler returns the warnings captured for the run named by ?id=.
// Runs that are no longer retained answer with an empty list.
func NewHistoryLogsHandler(provider WarningsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing run id")
			return
		}
		entries := provider.RunWarnings(id)
		if entries == nil {
			entries = []logging.LogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
