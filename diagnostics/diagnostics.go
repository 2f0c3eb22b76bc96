// Package diagnostics receives failure reports from the refresh orchestrator.
//
// A report is the tuple (message, context, details): a human-readable error, the
// name of the operation that failed, and structured data describing where it
// failed.
package diagnostics

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// Recorder accepts failure reports.
type Recorder interface {
	Record(ctx context.Context, message, operation string, details map[string]any)
}

// Entry is a recorded report.
type Entry struct {
	Time    time.Time      `json:"time"`
	Message string         `json:"message"`
	Context string         `json:"context"`
	Details map[string]any `json:"details,omitempty"`
}

const defaultMaxEntries = 20

// LogRecorder logs each report at error level and keeps the most recent ones.
type LogRecorder struct {
	logger     *slog.Logger
	maxEntries int

	mu      sync.Mutex
	entries []Entry
}

// NewLogRecorder creates a recorder keeping up to maxEntries reports. A
// non-positive maxEntries uses the default.
func NewLogRecorder(logger *slog.Logger, maxEntries int) *LogRecorder {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &LogRecorder{
		logger:     logger.With("component", "diagnostics"),
		maxEntries: maxEntries,
	}
}

// Record logs the report and stores a copy of it.
func (r *LogRecorder) Record(ctx context.Context, message, operation string, details map[string]any) {
	entry := Entry{
		Time:    time.Now(),
		Message: message,
		Context: operation,
		Details: maps.Clone(details),
	}
	r.logger.ErrorContext(ctx, message, "operation", operation, "details", details)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.maxEntries {
		r.entries = slices.Delete(r.entries, 0, len(r.entries)-r.maxEntries)
	}
}

// Recent returns the stored reports, oldest first.
func (r *LogRecorder) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}
