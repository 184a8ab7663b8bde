// scriptcomplete/helpers_watcher.go
// Watches the bindings file and triggers debounced reloads.
package scriptcomplete

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// BindingsWatcher calls reload after the bindings file is written, created or
// renamed. Bursts of events within the debounce delay cause a single reload.
type BindingsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce func(f func())
	reload   func() error
	logger   *slog.Logger
}

// NewBindingsWatcher watches the directory holding path so editors that
// replace the file on save are still observed.
func NewBindingsWatcher(path string, delay time.Duration, reload func() error, logger *slog.Logger) (*BindingsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = bindingsReloadDelay
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrBindingsFile, path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch directory of %s: %w", absPath, err)
	}
	return &BindingsWatcher{
		path:     absPath,
		watcher:  w,
		debounce: debounce.New(delay),
		reload:   reload,
		logger:   logger.With("component", "BindingsWatcher", "path", absPath),
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
// No reload runs once Run has returned.
func (bw *BindingsWatcher) Run(ctx context.Context) error {
	defer bw.watcher.Close()
	// Replace any pending reload with a no-op.
	defer bw.debounce(func() {})
	bw.logger.Info("Watching bindings file")
	for {
		select {
		case <-ctx.Done():
			bw.logger.Debug("Bindings watcher stopping")
			return ctx.Err()
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != bw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			bw.logger.Debug("Bindings file changed", "op", event.Op.String())
			bw.debounce(func() {
				if ctx.Err() != nil {
					return
				}
				if err := bw.reload(); err != nil {
					bw.logger.Error("Bindings reload failed", "error", err)
				}
			})
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return nil
			}
			bw.logger.Warn("Bindings watcher error", "error", err)
		}
	}
}
