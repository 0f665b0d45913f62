package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops cache entries as soon as their file changes on disk. The
// mtime comparison on read stays authoritative; this only shortens the time
// a stale entry occupies the cache.
type Watcher struct {
	fs    *fsnotify.Watcher
	cache *FileCache
	log   *slog.Logger

	mu   sync.Mutex
	dirs map[string]bool

	// OnInvalidate, when set, is called with each path dropped from the cache.
	OnInvalidate func(path string)

	wg sync.WaitGroup
}

// NewWatcher creates a watcher for entries of c.
func NewWatcher(c *FileCache, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		fs:    fw,
		cache: c,
		log:   log,
		dirs:  make(map[string]bool),
	}, nil
}

// Watch subscribes to changes of the directory holding path.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[dir] {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if w.cache.Remove(path) {
				w.log.Debug("file changed, dropped from cache", "path", path, "op", ev.Op.String())
				if w.OnInvalidate != nil {
					w.OnInvalidate(path)
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
