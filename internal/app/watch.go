package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"zbackup/internal/zb"
)

// DefaultReloadDebounce is how long the config file must stay quiet before
// a reload is triggered.
const DefaultReloadDebounce = 250 * time.Millisecond

// ConfigWatcher calls a reload function when the config file changes.
// The parent directory is watched so that editors which replace the file
// by renaming are picked up too.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	logger   zb.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, debounce time.Duration, logger zb.Logger) *ConfigWatcher {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	return &ConfigWatcher{path: path, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is cancelled, calling reload after each burst of
// changes to the config file. Reload errors are logged and watching goes on.
func (w *ConfigWatcher) Watch(ctx context.Context, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Debug("watching config file", "path", w.path)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())
			w.trigger(ctx, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// trigger restarts the debounce timer. Only the last event of a burst
// reloads.
func (w *ConfigWatcher) trigger(ctx context.Context, reload func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := reload(); err != nil {
			w.logger.Error("config reload failed", "path", w.path, "error", err)
		}
	})
}

func (w *ConfigWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
