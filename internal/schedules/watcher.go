package schedules

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watcher re-syncs a manifest whenever the file changes on disk.
//
// The parent directory is watched rather than the file itself, since most
// editors save by writing a temporary file and renaming it over the original.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context, path string)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	done    chan struct{}

	mu      sync.Mutex
	pending *time.Timer
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
// Multiple events within this duration are coalesced into one callback.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(path string, onChange func(ctx context.Context, path string), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		path:     abs,
		debounce: defaultWatchDebounce,
		onChange: onChange,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return w, nil
}

// SyncWatcher returns a watcher that loads the manifest and syncs it into
// store on every change. Invalid manifests are logged and skipped.
func SyncWatcher(store *Store, path string, opts SyncOptions, wopts ...WatcherOption) (*Watcher, error) {
	return NewWatcher(path, func(ctx context.Context, path string) {
		m, err := LoadManifest(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to load manifest")
			return
		}
		result, err := store.Sync(ctx, m, opts)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to sync manifest")
			return
		}
		log.Info().
			Int("created", len(result.Created)).
			Int("updated", len(result.Updated)).
			Int("deleted", len(result.Deleted)).
			Msg("Manifest synced")
	}, wopts...)
}

// Start begins watching for changes.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		log.Debug().Str("path", w.path).Msg("Manifest changed")
		w.onChange(ctx, w.path)
	})
}
