package whitelist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ipward/internal/telemetry/logging"
)

// debounceInterval absorbs editors that write a file in several rapid
// operations (truncate, write, rename) as a single reload trigger.
const debounceInterval = 200 * time.Millisecond

// FileWatcher watches the local whitelist file and triggers a reload
// shortly after it changes, rather than waiting for the next git poll
// interval to pick up a local edit.
type FileWatcher struct {
	path   string
	logger *logging.Logger

	watcher *fsnotify.Watcher
}

// NewFileWatcher constructs a FileWatcher for path. path must already
// exist; a whitelist file created after the daemon starts is picked up
// only on restart.
func NewFileWatcher(path string, logger *logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating whitelist file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	if logger == nil {
		logger, _ = logging.New(logging.Config{})
	}
	return &FileWatcher{path: path, logger: logger, watcher: w}, nil
}

// Watch blocks, calling onReload (debounced) after every write/create/
// rename event on the watched file, until ctx is cancelled.
func (fw *FileWatcher) Watch(ctx context.Context, onReload func(context.Context) error) {
	defer fw.watcher.Close()

	var mu sync.Mutex
	var timer *time.Timer
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceInterval, func() {
			if err := onReload(ctx); err != nil {
				fw.logger.Warn("whitelist file reload failed", "path", fw.path, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			trigger()
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("whitelist file watcher error", "error", err)
		}
	}
}
