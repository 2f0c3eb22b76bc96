package logging

import (
	"slices"
	"sync"
	"time"
)

// LogEntry represents a single captured log record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// LogCollector stores captured records per run. Only the most recent maxRuns
// runs are kept; older runs are dropped as new ones appear.
type LogCollector struct {
	mu      sync.RWMutex
	maxRuns int
	order   []string
	logs    map[string][]LogEntry
}

// NewLogCollector creates a collector keeping at most maxRuns runs (minimum 1).
func NewLogCollector(maxRuns int) *LogCollector {
	return &LogCollector{
		maxRuns: max(maxRuns, 1),
		logs:    make(map[string][]LogEntry),
	}
}

// Add appends an entry for runID.
func (c *LogCollector) Add(runID string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.logs[runID]; !ok {
		c.order = append(c.order, runID)
		for len(c.order) > c.maxRuns {
			delete(c.logs, c.order[0])
			c.order = slices.Delete(c.order, 0, 1)
		}
	}
	c.logs[runID] = append(c.logs[runID], entry)
}

// Logs returns a copy of the entries captured for runID.
func (c *LogCollector) Logs(runID string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, ok := c.logs[runID]
	if !ok {
		return nil
	}
	return slices.Clone(logs)
}

// Clear removes all stored entries.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.logs = make(map[string][]LogEntry)
}
