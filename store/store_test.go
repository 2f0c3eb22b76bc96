package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func backends(t *testing.T) map[string]RecordStore {
	t.Helper()
	disk, err := NewDiskStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "records.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]RecordStore{
		BackendDisk:   disk,
		BackendSQLite: sqlite,
		BackendMemory: NewMemoryStore(),
	}
}

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestRecordStore_GetPut(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var got doc
			found, err := s.Get(ctx, "missing", &got)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Put(ctx, "doc", doc{Name: "first", Count: 1}))
			require.NoError(t, s.Put(ctx, "doc", doc{Name: "second", Count: 2}))

			found, err = s.Get(ctx, "doc", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, doc{Name: "second", Count: 2}, got)
		})
	}
}

func TestDiskStore_AtomicFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "settings", Settings{ShowAvatars: true}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "settings.json", entries[0].Name())
}

func TestDiskStore_RejectsBadKeys(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", doc{})
	assert.Error(t, err)
	_, err = s.Get(context.Background(), "", &doc{})
	assert.Error(t, err)
}

func TestDiskStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyCache+".json"), []byte("{not json"), 0644))
	s, err := NewDiskStore(dir, testLogger())
	require.NoError(t, err)

	_, err = NewRecords(s).LoadCache(context.Background())
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{Backend: BackendMemory}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Dir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, s)

	_, err = Open(Options{Backend: "etcd"}, testLogger())
	assert.Error(t, err)
}

func TestRecords_CacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := NewRecords(s)

			empty, err := r.LoadCache(ctx)
			require.NoError(t, err)
			assert.Equal(t, cache.Empty(), empty)

			updated := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
			c := cache.ExtensionCache{
				Activities:     []cache.ActivityRecord{{UID: "a1", Href: "https://x/a1", Title: "Si"}},
				People:         []cache.PersonRecord{{UID: "p1", Name: "Pat"}},
				RosterEntries:  []cache.RosterEntryRecord{{ActivityUID: "a1", PersonUID: "p1", Role: cache.RoleInstructor}},
				LastUpdated:    &updated,
				CurrentUserUID: "p1",
			}
			require.NoError(t, r.SaveCache(ctx, c))

			got, err := r.LoadCache(ctx)
			require.NoError(t, err)
			assert.Equal(t, c.Activities, got.Activities)
			assert.Equal(t, c.People, got.People)
			assert.Equal(t, c.RosterEntries, got.RosterEntries)
			assert.Equal(t, "p1", got.CurrentUserUID)
			require.NotNil(t, got.LastUpdated)
			assert.True(t, updated.Equal(*got.LastUpdated))
		})
	}
}

func TestRecords_Settings(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(NewMemoryStore())

	s, err := r.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	limit := 5
	require.NoError(t, r.SaveSettings(ctx, Settings{ShowAvatars: false, FetchLimit: &limit}))
	s, err = r.LoadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, s.ShowAvatars)
	require.NotNil(t, s.FetchLimit)
	assert.Equal(t, 5, *s.FetchLimit)

	zero := 0
	assert.Error(t, r.SaveSettings(ctx, Settings{FetchLimit: &zero}))
}

func TestRecords_History(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(NewMemoryStore())

	runs, err := r.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for i := range maxHistory + 5 {
		require.NoError(t, r.AppendHistory(ctx, RunRecord{ID: fmt.Sprintf("run-%d", i), State: "completed"}))
	}
	runs, err = r.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, runs, maxHistory)
	assert.Equal(t, fmt.Sprintf("run-%d", maxHistory+4), runs[0].ID)
}
