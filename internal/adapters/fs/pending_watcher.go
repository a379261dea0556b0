package fs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/bicycledata/sensorship/internal/ports"
)

// PendingWatcher watches the pending directory and calls notify whenever a
// sealed buffer appears, so uploads start right after a seal instead of
// waiting for the next scheduled pass. It observes filesystem state only.
type PendingWatcher struct {
	dir    string
	notify func()
	logger ports.Logger
}

// NewPendingWatcher creates a watcher for dir.
func NewPendingWatcher(dir string, notify func(), logger ports.Logger) *PendingWatcher {
	return &PendingWatcher{dir: dir, notify: notify, logger: logger}
}

// Run watches until ctx is canceled. A watcher that cannot be created is
// logged and Run returns; scheduled passes still deliver every buffer.
func (w *PendingWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("pending watcher unavailable", ports.Err(err))
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		w.logger.Warn("pending watcher: failed to watch directory",
			ports.String("dir", w.dir),
			ports.Err(err),
		)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSealedEvent(event) {
				continue
			}
			w.logger.Debug("sealed buffer detected", ports.String("buffer", filepath.Base(event.Name)))
			w.notify()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("pending watcher error", ports.Err(err))
		}
	}
}

// isSealedEvent reports whether event is a sealed buffer showing up: the
// rename from .csv.active arrives as a Create of the .csv name. Renames out
// of the directory (archiving) are Rename events and are ignored.
func isSealedEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	return strings.HasSuffix(name, sealedExt) && !strings.HasPrefix(name, ".")
}
