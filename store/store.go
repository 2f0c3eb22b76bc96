// Package store persists the activity cache and user settings.
//
// Values are stored as JSON documents under string keys. Three backends are
// provided: one file per key on disk, a SQLite table, and memory only.
package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Keys of the persisted records.
const (
	KeyCache    = "activity-cache"
	KeySettings = "settings"
)

// Backend names accepted by Open.
const (
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// RecordStore reads and writes JSON documents by key.
type RecordStore interface {
	// Get decodes the record stored under key into v. It reports false when
	// there is no such record.
	Get(ctx context.Context, key string, v any) (bool, error)
	// Put replaces the record stored under key with v.
	Put(ctx context.Context, key string, v any) error
	// Close releases resources held by the store.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Dir        string
	SQLitePath string
}

// Open creates the RecordStore selected by opts.
func Open(opts Options, logger *slog.Logger) (RecordStore, error) {
	switch opts.Backend {
	case "", BackendDisk:
		return NewDiskStore(opts.Dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
