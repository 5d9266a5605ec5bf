// Package watcher turns filesystem activity in a drop directory into
// enhancement jobs. Files are enqueued once they stop changing, so a file
// still being copied in is not picked up half-written.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the path of a settled new video file.
type Handler func(path string)

// Watcher observes one directory, non-recursively.
type Watcher struct {
	dir     string
	settle  time.Duration
	matches func(name string) bool
	handler Handler
	logger  *slog.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]bool
	closed bool
}

// New creates a watcher for dir. matches filters by file name; handler runs
// once per settled file. Files are reported at most once per process, so a
// periodic rescan cannot re-enqueue what events already delivered.
func New(dir string, settle time.Duration, matches func(string) bool, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}

	return &Watcher{
		dir:     dir,
		settle:  settle,
		matches: matches,
		handler: handler,
		logger:  logger,
		timers:  map[string]*time.Timer{},
		seen:    map[string]bool{},
	}, nil
}

// Start begins delivering events. It returns immediately; delivery happens
// on background goroutines until Close.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.fsw = fsw

	go w.loop()
	w.logger.Info("watching directory", slog.String("dir", w.dir), slog.Duration("settle", w.settle))
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.touch(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))
		}
	}
}

// touch (re)starts the settle timer for a path. Every write pushes the
// deadline out; the handler fires only after the file goes quiet.
func (w *Watcher) touch(path string) {
	if !w.matches(filepath.Base(path)) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.seen[path] {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() { w.settled(path) })
}

func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	if w.closed || w.seen[path] {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Deleted or replaced by a directory while settling.
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	w.logger.Debug("file settled", slog.String("path", path))
	w.handler(path)
}

// Rescan enqueues matching files already present in the directory, in name
// order. It backstops lost events and picks up files that predate Start.
func (w *Watcher) Rescan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("rescanning %s: %w", w.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && w.matches(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(w.dir, name)

		w.mu.Lock()
		if w.closed || w.seen[path] {
			w.mu.Unlock()
			continue
		}
		if _, pending := w.timers[path]; pending {
			// Still settling from a live event; leave it to the timer.
			w.mu.Unlock()
			continue
		}
		w.seen[path] = true
		w.mu.Unlock()

		w.handler(path)
	}
	return nil
}

// Close stops event delivery. Settle timers that have not fired are
// discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
