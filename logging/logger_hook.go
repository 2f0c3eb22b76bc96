package logging

import (
	"log/slog"
)

// LoggerHook creates run-scoped loggers by wrapping a base logger.
type LoggerHook interface {
	// LoggerForRun wraps base so that records logged during runID can be
	// retrieved afterwards.
	LoggerForRun(base *slog.Logger, runID string) *slog.Logger
}

// WarningHook captures WARN and ERROR records of each run into a LogCollector.
type WarningHook struct {
	collector *LogCollector
}

// NewWarningHook creates a hook storing captured records in collector.
func NewWarningHook(collector *LogCollector) *WarningHook {
	return &WarningHook{collector: collector}
}

// LoggerForRun returns base wrapped in a CapturingHandler tagged with runID.
func (h *WarningHook) LoggerForRun(base *slog.Logger, runID string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), h.collector, runID, slog.LevelWarn))
}

// Warnings returns the records captured for runID.
func (h *WarningHook) Warnings(runID string) []LogEntry {
	return h.collector.Logs(runID)
}
