package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
)

// Settings are the user preferences persisted alongside the cache.
type Settings struct {
	ShowAvatars bool `json:"showAvatars"`
	// FetchLimit caps the number of new activities enriched per refresh.
	// Nil means unlimited.
	FetchLimit *int `json:"fetchLimit"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{ShowAvatars: true}
}

// Validate rejects settings that cannot be applied.
func (s Settings) Validate() error {
	if s.FetchLimit != nil && *s.FetchLimit <= 0 {
		return fmt.Errorf("fetchLimit must be positive, got %d", *s.FetchLimit)
	}
	return nil
}

// Records is the typed view of a RecordStore used by the rest of the program.
type Records struct {
	store RecordStore
}

// NewRecords wraps s.
func NewRecords(s RecordStore) *Records {
	return &Records{store: s}
}

// LoadCache returns the persisted cache, or an empty cache if none was saved.
func (r *Records) LoadCache(ctx context.Context) (cache.ExtensionCache, error) {
	c := cache.Empty()
	if _, err := r.store.Get(ctx, KeyCache, &c); err != nil {
		return cache.Empty(), fmt.Errorf("loading cache: %w", err)
	}
	if c.Activities == nil {
		c.Activities = []cache.ActivityRecord{}
	}
	if c.People == nil {
		c.People = []cache.PersonRecord{}
	}
	if c.RosterEntries == nil {
		c.RosterEntries = []cache.RosterEntryRecord{}
	}
	return c, nil
}

// SaveCache persists c.
func (r *Records) SaveCache(ctx context.Context, c cache.ExtensionCache) error {
	if err := r.store.Put(ctx, KeyCache, c); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	return nil
}

// LoadSettings returns the persisted settings, or the defaults if none were saved.
func (r *Records) LoadSettings(ctx context.Context) (Settings, error) {
	s := DefaultSettings()
	if _, err := r.store.Get(ctx, KeySettings, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

// SaveSettings validates and persists s.
func (r *Records) SaveSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.store.Put(ctx, KeySettings, s); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// KeyHistory holds the most recent refresh runs.
const KeyHistory = "refresh-history"

const maxHistory = 50

// RunRecord describes one finished refresh run.
type RunRecord struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	NewActivities int       `json:"newActivities"`
	ActivityCount int       `json:"activityCount"`
	Warnings      int       `json:"warnings"`
	Error         string    `json:"error,omitempty"`
}

// LoadHistory returns the persisted run history, most recent first.
func (r *Records) LoadHistory(ctx context.Context) ([]RunRecord, error) {
	var runs []RunRecord
	if _, err := r.store.Get(ctx, KeyHistory, &runs); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return runs, nil
}

// AppendHistory prepends run to the history, dropping the oldest entries beyond
// the retention limit.
func (r *Records) AppendHistory(ctx context.Context, run RunRecord) error {
	runs, err := r.LoadHistory(ctx)
	if err != nil {
		return err
	}
	runs = append([]RunRecord{run}, runs...)
	if len(runs) > maxHistory {
		runs = runs[:maxHistory]
	}
	if err := r.store.Put(ctx, KeyHistory, runs); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}
