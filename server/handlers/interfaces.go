// Package handlers provides HTTP handlers for the harvester server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/config"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// Refresher starts refreshes in the background.
type Refresher interface {
	Start() (string, error)
}

// StatusProvider reports the refresh lifecycle.
type StatusProvider interface {
	Status() bus.StatusResponse
	State() orchestrator.State
	LastSummary() (cache.RefreshSummary, bool)
	LastError() string
	Warnings() []logging.LogEntry
}

// CacheProvider provides access to the persisted cache.
type CacheProvider interface {
	LoadCache(ctx context.Context) (cache.ExtensionCache, error)
}

// SettingsStore reads and writes user settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (store.Settings, error)
	SaveSettings(ctx context.Context, s store.Settings) error
}

// HistoryProvider provides access to run history.
type HistoryProvider interface {
	LoadHistory(ctx context.Context) ([]store.RunRecord, error)
}

// WarningsProvider returns the warnings captured for a run.
type WarningsProvider interface {
	RunWarnings(runID string) []logging.LogEntry
}

// UpdateSource streams refresh updates and answers protocol messages.
type UpdateSource interface {
	Watch() (<-chan orchestrator.Update, func())
	HandleMessage(m bus.Message) (bus.Message, error)
}
