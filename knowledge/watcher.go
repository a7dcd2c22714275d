package knowledge

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the documents directory and ingests files as they
// appear or change, so dropping a file into the directory is enough to
// index it.
type Watcher struct {
	base    *Base
	watcher *fsnotify.Watcher
	// settle delays ingestion after a write burst so partially copied
	// files are not parsed mid-transfer
	settle time.Duration
}

// NewWatcher creates a watcher over the base's documents directory.
func NewWatcher(base *Base) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		base:    base,
		watcher: w,
		settle:  500 * time.Millisecond,
	}, nil
}

// Run watches until the context is cancelled. Ingestion failures are
// logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.watcher.Add(w.base.cfg.DocumentsDir); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.base.registry.Supported(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case <-ticker.C:
			for path, seen := range pending {
				if time.Since(seen) < w.settle {
					continue
				}
				delete(pending, path)

				if _, err := w.base.IngestFile(ctx, path); err != nil {
					log.Printf("[WARN] watcher: failed to ingest %s: %v", path, err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] watcher: %v", err)
		}
	}
}
