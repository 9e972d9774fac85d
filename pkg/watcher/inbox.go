package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/model"
)

// Uploader creates upload nodes from file contents and replaces their images.
type Uploader interface {
	UploadNew(ctx context.Context, filename string, data []byte) (model.NodeID, error)
	Upload(ctx context.Context, id model.NodeID, filename string, data []byte) error
}

// Inbox imports every image file that appears in a directory. A file that is
// written again, for instance because it was still being copied when first
// imported, updates the node it created instead of adding another.
type Inbox struct {
	Dir         string
	QuietPeriod time.Duration
	MaxWait     time.Duration
	uploader    Uploader

	mu       sync.Mutex
	imported map[string]model.NodeID // path -> node
}

// NewInbox creates an inbox over dir with the default debounce timing.
func NewInbox(dir string, uploader Uploader) *Inbox {
	return &Inbox{
		Dir:         dir,
		QuietPeriod: DefaultQuietPeriod,
		MaxWait:     DefaultMaxWait,
		uploader:    uploader,
		imported:    make(map[string]model.NodeID),
	}
}

// Run watches the inbox until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	fw, err := NewFileWatcher(in.Dir)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := NewDebouncer(fw.Events(), in.QuietPeriod, in.MaxWait)
	debouncer.Start(ctx)

	for event := range debouncer.Output() {
		in.Import(ctx, event)
	}
	return nil
}

// Import uploads the importable files of one batch and returns the ids of the
// nodes created or updated.
func (in *Inbox) Import(ctx context.Context, event ChangeEvent) []model.NodeID {
	in.mu.Lock()
	defer in.mu.Unlock()

	analysis := AnalyzeChanges(event)
	for _, p := range analysis.Skipped {
		logging.Debug("Skipping inbox file", "path", p)
	}

	var ids []model.NodeID
	for _, p := range analysis.Import {
		data, err := os.ReadFile(p)
		if err != nil {
			logging.Warn("Failed to read inbox file", "path", p, "error", err)
			continue
		}
		id, err := in.importFile(ctx, p, data)
		if err != nil {
			logging.Warn("Failed to import inbox file", "path", p, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// importFile must be called with in.mu held.
func (in *Inbox) importFile(ctx context.Context, path string, data []byte) (model.NodeID, error) {
	name := filepath.Base(path)

	if id, ok := in.imported[path]; ok {
		err := in.uploader.Upload(ctx, id, name, data)
		if err == nil {
			logging.Info("Updated inbox file", "path", path, "nodeID", id)
			return id, nil
		}
		if !errors.Is(err, graph.ErrNodeNotFound) {
			return 0, err
		}
		// The node was deleted; import the file afresh
		delete(in.imported, path)
	}

	id, err := in.uploader.UploadNew(ctx, name, data)
	if err != nil {
		return 0, err
	}
	in.imported[path] = id
	logging.Info("Imported inbox file", "path", path, "nodeID", id)
	return id, nil
}
