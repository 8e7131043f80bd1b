// Package watch implements the directory-drop front end: recordings that
// appear in the watched inbox are processed serially, in arrival order.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/callytics/callytics/cmd/server/internal/jobs"
)

const (
	// stablePollInterval is how often a new file's size is re-checked.
	stablePollInterval = 500 * time.Millisecond

	// stableChecks is how many consecutive unchanged sizes mean the upload
	// finished.
	stableChecks = 3

	queueSize = 256
)

// Watcher monitors a directory for new audio files and feeds them to the
// pipeline one at a time. Files still being written are debounced until
// their size is stable.
type Watcher struct {
	dir       string
	processor jobs.Processor
	log       *slog.Logger
	queue     chan string
}

// New creates a Watcher for dir.
func New(dir string, processor jobs.Processor, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		dir:       dir,
		processor: processor,
		log:       log,
		queue:     make(chan string, queueSize),
	}
}

// Run watches until the context is cancelled. Files already present in the
// directory at startup are queued first, then filesystem events take over.
// Processing is serial: one recording at a time, in arrival order.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	// pick up files that arrived while the watcher was down
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isAudioFile(e.Name()) {
			w.enqueue(filepath.Join(w.dir, e.Name()))
		}
	}

	go w.processLoop(ctx)

	w.log.Info("watching for recordings", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			w.enqueue(event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) enqueue(path string) {
	select {
	case w.queue <- path:
	default:
		w.log.Warn("watch queue full, dropping file", "path", path)
	}
}

func (w *Watcher) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			if !w.waitUntilStable(ctx, path) {
				continue
			}
			w.log.Info("processing dropped recording", "path", path)
			w.processor.Process(ctx, path)
		}
	}
}

// waitUntilStable blocks until the file size stops changing, treating that
// as the end of the upload. Returns false if the file disappears or the
// context is cancelled.
func (w *Watcher) waitUntilStable(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	stable := 0
	ticker := time.NewTicker(stablePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				return false
			}
			if info.Size() == lastSize && info.Size() > 0 {
				stable++
				if stable >= stableChecks {
					return true
				}
			} else {
				stable = 0
				lastSize = info.Size()
			}
		}
	}
}

// isAudioFile reports whether the path has a supported audio extension.
func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}
