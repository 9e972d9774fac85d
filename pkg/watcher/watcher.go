// Package watcher turns image files dropped into an inbox directory into
// upload nodes.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/node-composer/pkg/logging"
)

// ChangeEvent represents a batch of file system changes.
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// batchDelay groups the create and write events a single copy produces.
const batchDelay = 100 * time.Millisecond

// FileWatcher watches an inbox directory for new image files.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	events  chan ChangeEvent
	once    sync.Once
}

// NewFileWatcher creates a watcher for dir, creating the directory if needed.
func NewFileWatcher(dir string) (*FileWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		dir:     dir,
		events:  make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching. Events stop and the channel closes when ctx ends.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watcher.Add(fw.dir); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}

	logging.Info("Watching inbox", "path", fw.dir)
	go fw.processEvents(ctx)
	return nil
}

// processEvents batches image file events.
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.Stop()

	var paths []string
	flushTimer := time.NewTimer(batchDelay)
	flushTimer.Stop()

	flush := func() {
		if len(paths) == 0 {
			return
		}
		select {
		case fw.events <- ChangeEvent{Paths: paths, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
		paths = nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				flush()
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if Classify(event.Name) != ChangeTypeImage {
				logging.Trace("Ignoring inbox file", "path", event.Name)
				continue
			}
			paths = append(paths, event.Name)
			flushTimer.Reset(batchDelay)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.once.Do(func() { err = fw.watcher.Close() })
	return err
}
