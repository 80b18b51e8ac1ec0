package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherStopped is returned by Start once the watcher has been stopped.
var ErrWatcherStopped = errors.New("config watcher stopped")

// Watcher watches the config file and reloads it when it changes.
// Invalid configs are reported through the error callback and the last good
// config stays current.
type Watcher struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	path    string

	current *File

	onReload func(*File)
	onError  func(error)

	done    chan struct{}
	stopped chan struct{}
	running bool
	closed  bool
}

// NewWatcher creates a Watcher for the config file at path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = Path()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher: watcher,
		logger:  logger,
		path:    path,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// SetReloadCallback sets the function called with every successfully reloaded config.
func (w *Watcher) SetReloadCallback(callback func(*File)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = callback
}

// SetErrorCallback sets the function called when a reload fails.
func (w *Watcher) SetErrorCallback(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
}

// Current returns the last successfully loaded config.
func (w *Watcher) Current() *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching. initial becomes the current config.
// A watcher cannot be restarted after Stop.
func (w *Watcher) Start(ctx context.Context, initial *File) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.current = initial
	w.mu.Unlock()

	// Watch the directory: editors replace files rather than writing in place.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.watch(ctx)

	w.logger.Debug("config watcher started", "path", w.path)
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stopped)
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// reload loads the file and dispatches to the callbacks.
func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)

	w.mu.Lock()
	if err == nil {
		w.current = cfg
	}
	onReload, onError := w.onReload, w.onError
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	if onReload != nil {
		onReload(cfg)
	}
}

// Stop stops watching and releases the underlying watcher. It is safe to
// call more than once, and on a watcher that was never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	running := w.running
	w.running = false
	if running {
		close(w.done)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	if running {
		<-w.stopped
	}
	return err
}
