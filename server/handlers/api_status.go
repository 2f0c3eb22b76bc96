package handlers

import (
	"net/http"
	"time"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/diagnostics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

// RefreshStatus describes the refresh currently in flight, or the last one.
type RefreshStatus struct {
	State      orchestrator.State     `json:"state"`
	InProgress bool                   `json:"in_progress"`
	Progress   *cache.RefreshProgress `json:"progress"`
	LastError  string                 `json:"last_error,omitempty"`
	Warnings   []logging.LogEntry     `json:"warnings"`
}

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Refresh     RefreshStatus         `json:"refresh"`
	Summary     *cache.RefreshSummary `json:"summary"`
	NextRun     NextRunResponse       `json:"next_run"`
	Diagnostics []diagnostics.Entry   `json:"diagnostics"`
	Build       buildinfo.Properties  `json:"build"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	StatusProvider
	NextRun() *time.Time
	Diagnostics() []diagnostics.Entry
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.provider.Status()
	warnings := h.provider.Warnings()
	if warnings == nil {
		warnings = []logging.LogEntry{}
	}
	diag := h.provider.Diagnostics()
	if diag == nil {
		diag = []diagnostics.Entry{}
	}

	resp := APIStatusResponse{
		Refresh: RefreshStatus{
			State:      h.provider.State(),
			InProgress: status.InProgress,
			Progress:   status.Progress,
			LastError:  h.provider.LastError(),
			Warnings:   warnings,
		},
		Diagnostics: diag,
		Build:       buildinfo.Get(),
	}
	if summary, ok := h.provider.LastSummary(); ok {
		resp.Summary = &summary
	}
	nextRun := h.provider.NextRun()
	resp.NextRun = NextRunResponse{
		Scheduled: nextRun != nil,
		NextRun:   nextRun,
	}

	writeJSON(w, http.StatusOK, resp)
}
