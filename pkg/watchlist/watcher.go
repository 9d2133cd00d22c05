package watchlist

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher hot-reloads a Store when its backing file changes on disk.
// It watches the parent directory so atomic rename-replace writes are
// picked up as well.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	debounce time.Duration
	done     chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the store's backing file.
func NewWatcher(store *Store) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		store:    store,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start starts watching for changes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.store.Path()).Msg("Watchlist watcher started")

	return nil
}

// Stop stops the watcher. Repeated calls are no-ops.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
			return
		}

		log.Info().Msg("Watchlist watcher stopped")
	})
	return err
}

// eventLoop processes file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watchlist watcher error")

		case <-w.done:
			return
		}
	}
}

// handleEvent debounces events touching the backing file
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.store.Path()) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}

		if err := w.store.Reload(); err != nil {
			log.Warn().Err(err).Msg("Watchlist reload failed, keeping previous lists")
			return
		}
		log.Info().Int("lists", len(w.store.Names())).Msg("Watchlists reloaded")
	})
}
