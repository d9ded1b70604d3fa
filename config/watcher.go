package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads the config store when its backing file changes on disk, so
// poll knobs can be tuned without a restart. Editors and atomic writers
// produce bursts of events, hence the debounce.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher

	timerMu sync.Mutex
	timer   *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewWatcher(store *Store) *Watcher {
	return &Watcher{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file keeps the watch alive across rename-based atomic
// writes.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		watcher.Close()
		return err
	}

	go w.eventLoop()
	slog.Info("config watcher started", "path", w.store.Path())
	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	slog.Info("config watcher stopped")
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.store.Path()) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, w.reload)
	w.timerMu.Unlock()
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	if err := w.store.Reload(); err != nil {
		slog.Warn("config reload failed, keeping current config", "error", err)
		return
	}
	slog.Info("config reloaded", "config", w.store.Get())
}
