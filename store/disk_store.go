package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var validKey = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// DiskStore keeps each record in <dir>/<key>.json. Writes go to a temporary file
// that is renamed into place, so a reader never sees a partial record.
type DiskStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDiskStore creates a disk-backed store. The directory is created if it
// doesn't exist.
func NewDiskStore(dir string, logger *slog.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DiskStore{
		dir:    dir,
		logger: logger.With("component", "disk_store"),
	}, nil
}

// Get decodes the record stored under key into v.
func (s *DiskStore) Get(ctx context.Context, key string, v any) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Put writes v under key.
func (s *DiskStore) Put(ctx context.Context, key string, v any) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}

	s.logger.Debug("saved record to disk", "key", key, "path", path, "bytes", len(data))
	return nil
}

// Close is a no-op.
func (s *DiskStore) Close() error { return nil }

func (s *DiskStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid record key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
