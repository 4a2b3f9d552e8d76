// Package watcher feeds the ingest queue from the filesystem: it watches
// directory trees and enqueues the passages of any created or modified text
// file. Indexing then follows the normal batched upload path.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/screenager/vexd/internal/chunker"
	"github.com/screenager/vexd/internal/ingest"
)

// debounceDelay coalesces rapid saves of the same file.
const debounceDelay = 500 * time.Millisecond

// Watcher enqueues changed files into an ingest queue.
type Watcher struct {
	fw    *fsnotify.Watcher
	queue *ingest.Queue
	log   *slog.Logger
}

// New creates a watcher that feeds queue.
func New(queue *ingest.Queue, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{fw: fw, queue: queue, log: log}, nil
}

// Watch adds rootDir and its subdirectories to the watch list and processes
// events until done closes. Run it in a goroutine.
func (w *Watcher) Watch(rootDir string, done <-chan struct{}) error {
	if err := w.addDirRecursive(rootDir); err != nil {
		return err
	}

	pending := make(map[string]*time.Timer)

	for {
		select {
		case <-done:
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			path := event.Name

			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(path); err == nil && fi.IsDir() {
					_ = w.addDirRecursive(path)
				}
			}
			if !chunker.IsSupportedFile(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if t, ok := pending[path]; ok {
					t.Stop()
				}
				pending[path] = time.AfterFunc(debounceDelay, func() {
					w.enqueueFile(path)
				})
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// enqueueFile splits path into passages and enqueues each as an upload.
func (w *Watcher) enqueueFile(path string) {
	passages, err := chunker.SplitFile(path, chunker.DefaultOptions())
	if err != nil {
		w.log.Warn("skip file", "path", path, "err", err)
		return
	}
	for _, p := range passages {
		w.queue.Enqueue(p.Text)
	}
	w.log.Info("enqueued file", "path", path, "passages", len(passages))
}

// addDirRecursive adds dir and all non-hidden subdirectories to the watcher.
func (w *Watcher) addDirRecursive(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			if err := w.addDirRecursive(filepath.Join(dir, e.Name())); err != nil {
				w.log.Warn("skip dir", "err", err)
			}
		}
	}
	return nil
}
