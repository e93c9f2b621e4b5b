package libwatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sameehj/gridbridge/pkg/library"
)

const debounceDelay = 300 * time.Millisecond

// Reloader refreshes a single script file and reports its library name.
type Reloader interface {
	ReloadScript(path string) (string, error)
}

// Watcher keeps a script library in sync with the files on disk.
type Watcher struct {
	registry Reloader
	paths    []string
	onReload func(name string)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	debounce map[string]*time.Timer
	delay    time.Duration
	logger   *slog.Logger
}

// New watches paths and reloads changed scripts into registry. onReload is
// called with the script name after every successful reload, which lets
// callers drop cached compilations.
func New(registry Reloader, paths []string, onReload func(name string)) *Watcher {
	return &Watcher{
		registry: registry,
		paths:    paths,
		onReload: onReload,
		debounce: make(map[string]*time.Timer),
		delay:    debounceDelay,
	}
}

func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.logger = logger
}

// Start blocks until ctx is done. Paths that do not exist are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	watched := 0
	for _, path := range w.paths {
		if err := w.addRecursive(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.logInfo("scripts_path_missing", "path", path)
				continue
			}
			_ = watcher.Close()
			return err
		}
		watched++
	}
	w.logInfo("watching_scripts", "paths", watched)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			_ = w.watcher.Close()
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
					continue
				}
			}
			if shouldReload(event) {
				w.scheduleReload(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logError("watcher_error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func shouldReload(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != library.Ext {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	name, err := w.registry.ReloadScript(path)
	if err != nil {
		w.logError("script_reload_failed", "path", path, "error", err)
		return
	}
	if w.onReload != nil {
		w.onReload(name)
	}
	w.logInfo("script_reloaded", "name", name, "path", path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, path)
	}
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Watcher) logError(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Error(msg, args...)
	}
}
