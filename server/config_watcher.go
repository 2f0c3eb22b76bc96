package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// ConfigWatcher calls a reload function when the config file changes on disk.
//
// The parent directory is watched rather than the file itself because editors
// and config management usually replace the file with a rename. Bursts of
// events are collapsed into one reload.
type ConfigWatcher struct {
	path     string
	reload   func() error
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewConfigWatcher starts watching path. Call Run to process events.
func NewConfigWatcher(path string, reload func() error, logger *slog.Logger) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &ConfigWatcher{
		path:     abs,
		reload:   reload,
		logger:   logger,
		debounce: defaultWatchDebounce,
		watcher:  w,
	}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (cw *ConfigWatcher) Run(ctx context.Context) {
	defer cw.watcher.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.relevant(event) {
				continue
			}
			cw.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			timerC = timer.C
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "error", err)
		case <-timerC:
			timerC = nil
			if err := cw.reload(); err != nil {
				cw.logger.Error("reloading changed config failed, keeping previous config", "path", cw.path, "error", err)
				continue
			}
			cw.logger.Info("config reloaded after file change", "path", cw.path)
		}
	}
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != cw.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
