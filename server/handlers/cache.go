package handlers

import (
	"log/slog"
	"net/http"
)

// CacheHandler returns the persisted activity cache.
type CacheHandler struct {
	logger   *slog.Logger
	provider CacheProvider
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(logger *slog.Logger, provider CacheProvider) *CacheHandler {
	return &CacheHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *CacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.provider.LoadCache(r.Context())
	if err != nil {
		h.logger.Error("failed to load cache", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SummaryHandler returns the cache summary. New activities are taken from the
// last successful refresh.
type SummaryHandler struct {
	logger   *slog.Logger
	provider CacheProvider
	status   StatusProvider
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(logger *slog.Logger, provider CacheProvider, status StatusProvider) *SummaryHandler {
	return &SummaryHandler{
		logger:   logger,
		provider: provider,
		status:   status,
	}
}

// ServeHTTP implements http.Handler.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.provider.LoadCache(r.Context())
	if err != nil {
		h.logger.Error("failed to load cache", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	added := 0
	if last, ok := h.status.LastSummary(); ok {
		added = last.NewActivities
	}
	writeJSON(w, http.StatusOK, c.Summary(added))
}
