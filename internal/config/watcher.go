package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher watches a file or a directory tree and, once changes settle,
// loads a fresh T and hands it to every registered handler.
type Watcher[T any] struct {
	path        string
	debounce    time.Duration
	ops         fsnotify.Op
	depth       int
	initialLoad bool
	loader      func(path string) (T, error)
	onError     func(error)
	logger      *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long changes must be quiet before a reload.
// Default is 1500ms.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for load errors.
// If not set, errors are only logged.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// WithInitialLoad makes Start load once and notify handlers before watching.
func WithInitialLoad[T any]() WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.initialLoad = true
	}
}

// WithOps limits which filesystem operations trigger a reload.
// Default is write, create, remove and rename.
func WithOps[T any](ops fsnotify.Op) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.ops = ops
	}
}

// WithDepth also watches subdirectories up to depth levels below a watched
// directory, including ones created later. Default 0 watches only the path.
func WithDepth[T any](depth int) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.depth = depth
	}
}

// NewWatcher creates a typed watcher for a file or directory.
func NewWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: 1500 * time.Millisecond,
		ops:      defaultWatchOps,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler and returns a func that removes it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching. With WithInitialLoad, handlers are notified once
// before Start returns.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addTree(w.path); err != nil {
		fsw.Close()
		return err
	}

	if w.initialLoad {
		w.reload()
	}

	w.logger.Info("Watcher started", "path", w.path, "depth", w.depth, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Done is closed when the watcher is stopped.
func (w *Watcher[T]) Done() <-chan struct{} {
	return w.ctx.Done()
}

// addTree watches dir and its subdirectories within depth.
func (w *Watcher[T]) addTree(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	if w.levelOf(dir) >= w.depth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// A file path, or a directory that vanished meanwhile.
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.addTree(filepath.Join(dir, e.Name())); err != nil {
				w.logger.Debug("Failed to watch subdirectory", "path", e.Name(), "error", err)
			}
		}
	}
	return nil
}

// levelOf returns how many directories below the root path p is.
func (w *Watcher[T]) levelOf(p string) int {
	rel, err := filepath.Rel(w.path, p)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (w *Watcher[T]) run() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Watcher stopped", "path", w.path)
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.depth > 0 && ev.Has(fsnotify.Create) && w.levelOf(ev.Name) <= w.depth {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if ev.Op&w.ops == 0 {
				continue
			}
			w.logger.Debug("Change detected", "name", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.logger.Debug("Changes settled, reloading", "path", w.path)
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

// reload loads a fresh value and hands the same snapshot to every handler.
func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to load watched path", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), 0, len(w.handlers))
	for id := range w.nextID {
		if h, ok := w.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	w.mu.Unlock()

	for _, h := range handlers {
		h(value)
	}
}
