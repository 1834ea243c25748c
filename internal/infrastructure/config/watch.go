package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long Watch waits after the last write before
// reloading.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
	// pending counts a scheduled or running reload
	pending sync.WaitGroup
}

// NewWatcher creates a watcher for path. A zero debounce uses
// DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger.With(zap.String("component", "config-watcher"), zap.String("path", path)),
	}
}

// Watch blocks until ctx is done, calling onChange with every config that
// loads and validates after a change. Invalid files are logged and the
// previous config stays in effect. onChange is never called after Watch
// returns.
//
// The parent directory is watched so that editors replacing the file by
// rename are seen.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("config watcher started")

	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("config file event", zap.String("op", event.Op.String()))
			w.schedule(ctx, onChange)

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, onChange func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()
		if ctx.Err() != nil {
			return
		}
		cfg, err := LoadFile(w.path)
		if err != nil {
			w.logger.Error("config reload failed, keeping previous config", zap.Error(err))
			return
		}
		w.logger.Info("config reloaded")
		onChange(cfg)
	})
}

// drain cancels a scheduled reload and waits for one already running.
func (w *Watcher) drain() {
	w.mu.Lock()
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.timer = nil
	w.mu.Unlock()
	w.pending.Wait()
}
