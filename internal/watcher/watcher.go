// Package watcher triggers a re-index when corpus files change on disk.
package watcher

import (
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mitey/internal/log"
)

const DefaultDebounce = 500 * time.Millisecond

// Filter decides which paths matter. *scanner.Scanner satisfies it.
type Filter interface {
	Allowed(name string) bool
	Ignored(name string) bool
}

type Config struct {
	Root     string
	Debounce time.Duration
}

// Watcher collapses bursts of file events under Root into a single call of
// onChange, fired once no relevant event has arrived for the debounce delay.
type Watcher struct {
	cfg      Config
	filter   Filter
	onChange func(changed []string)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, filter Filter, onChange func(changed []string)) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:      cfg,
		filter:   filter,
		onChange: onChange,
		watcher:  w,
		logger:   log.NewModuleLogger("watcher", "fs"),
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start registers every non-ignored directory under Root and begins
// delivering events.
func (w *Watcher) Start() error {
	if err := w.addDirRecursive(w.cfg.Root); err != nil {
		return err
	}
	w.logger.Info("watching", "root", w.cfg.Root, "debounce", w.cfg.Debounce)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends the event loop and cancels a pending callback.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) addDirRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.filter.Ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.filter.Ignored(filepath.Base(ev.Name)) {
				return
			}
			if err := w.addDirRecursive(ev.Name); err != nil {
				w.logger.Debug("failed to watch new directory", "path", ev.Name, "error", err)
			}
			// Files may land before the directory is registered.
			w.schedule(ev.Name)
			return
		}
	}
	if !w.filter.Allowed(ev.Name) {
		return
	}
	w.schedule(ev.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	changed := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	w.timer = nil
	w.mu.Unlock()

	select {
	case <-w.stopCh:
		return
	default:
	}
	w.logger.Debug("change detected", "paths", len(changed))
	w.onChange(changed)
}
