// Package manager owns every open document: live buffers edited by a host,
// and file-backed documents read on demand into a bounded cache.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/zortex/internal/cache"
	"github.com/dgallion1/zortex/internal/doctree"
	"github.com/dgallion1/zortex/internal/document"
)

var (
	ErrUnavailable    = errors.New("file unavailable")
	ErrBufferNotFound = errors.New("buffer not found")
)

// DefaultDebounce is how long a buffer stays quiet before it is reparsed.
const DefaultDebounce = 150 * time.Millisecond

// Source is a live buffer's text as seen by the manager.
type Source interface {
	Lines() []string
	Len() int
	Path() string
}

// Observer receives manager telemetry. metrics.Metrics implements it.
type Observer interface {
	document.Observer
	cache.Observer
	ObserveNotification(outcome string)
	SetLiveBuffers(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveParse(string, time.Duration) {}
func (nopObserver) ObserveFallback(string)             {}
func (nopObserver) ObserveCache(string)                {}
func (nopObserver) ObserveNotification(string)         {}
func (nopObserver) SetLiveBuffers(int)                 {}

// Options configure a Manager. Zero values select defaults.
type Options struct {
	CacheCapacity int
	Debounce      time.Duration
	Watch         bool          // drop cache entries on fsnotify events
	SweepInterval time.Duration // periodic stale-entry sweep; 0 disables it
	ScanWorkers   int
	Verify        bool // verify every incremental parse against a full parse
	Logger        *slog.Logger
	Observer      Observer
}

// ChangeEvent announces that a document was reparsed.
type ChangeEvent struct {
	DocumentID    string           `json:"document_id"`
	BufferID      string           `json:"buffer_id,omitempty"`
	Path          string           `json:"path,omitempty"`
	Version       int              `json:"version"`
	ChangedRanges []document.Range `json:"changed_ranges"`
}

type liveDoc struct {
	id    string
	path  string
	src   Source
	doc   *document.Document
	timer *time.Timer
}

// Stats is a snapshot of what the manager holds.
type Stats struct {
	LiveBuffers   int `json:"live_buffers"`
	CachedFiles   int `json:"cached_files"`
	CacheCapacity int `json:"cache_capacity"`
	Subscribers   int `json:"subscribers"`
}

// Manager is safe for concurrent use.
type Manager struct {
	opts    Options
	log     *slog.Logger
	obs     Observer
	files   *cache.FileCache
	watcher *cache.Watcher

	mu      sync.Mutex
	live    map[string]*liveDoc
	byPath  map[string]string
	subs    map[int]chan ChangeEvent
	nextSub int
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager. The fsnotify watcher, when enabled, runs once
// Start is called.
func New(opts Options) (*Manager, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	files, err := cache.New(opts.CacheCapacity, opts.Logger, opts.Observer)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		opts:   opts,
		log:    opts.Logger,
		obs:    opts.Observer,
		files:  files,
		live:   make(map[string]*liveDoc),
		byPath: make(map[string]string),
		subs:   make(map[int]chan ChangeEvent),
	}
	if opts.Watch {
		w, err := cache.NewWatcher(files, opts.Logger)
		if err != nil {
			return nil, err
		}
		w.OnInvalidate = func(string) { m.obs.ObserveCache(cache.EventStale) }
		m.watcher = w
	}
	return m, nil
}

// Start launches the file watcher and the stale-entry sweep.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.watcher != nil {
		m.watcher.Start(ctx)
	}
	if m.opts.SweepInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.opts.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.Sweep()
				}
			}
		}()
	}
}

// Stop shuts down the background loops started by Start.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			m.log.Warn("close file watcher", "error", err)
		}
	}
	m.wg.Wait()
}

// Close stops every debounce timer, drops all documents and closes
// subscriber channels. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, l := range m.live {
		if l.timer != nil {
			l.timer.Stop()
		}
		delete(m.live, id)
	}
	clear(m.byPath)
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	m.files.Purge()
	m.obs.SetLiveBuffers(0)
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// OpenBuffer registers src as the live document for id, replacing any
// buffer already open under that id. A cached copy of the same file is
// dropped: the live document is authoritative from now on.
func (m *Manager) OpenBuffer(id string, src Source) (*document.Document, error) {
	path := normalizePath(src.Path())
	doc := document.New(document.Options{
		Source:   document.SourceBuffer,
		Path:     path,
		Lines:    src,
		Logger:   m.log.With("buffer_id", id),
		Observer: m.obs,
		Verify:   m.opts.Verify,
	})
	doc.ParseFull(src.Lines())
	doc.TakeChanges()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("manager closed")
	}
	if old, ok := m.live[id]; ok {
		m.dropLocked(old)
	}
	l := &liveDoc{id: id, path: path, src: src, doc: doc}
	m.live[id] = l
	if path != "" {
		m.byPath[path] = id
		m.files.Remove(path)
	}
	m.obs.SetLiveBuffers(len(m.live))
	m.log.Debug("buffer opened", "buffer_id", id, "path", path, "document_id", doc.ID())
	return doc, nil
}

// CloseBuffer cancels pending work for id and forgets the buffer.
func (m *Manager) CloseBuffer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.live[id]
	if !ok {
		return fmt.Errorf("close %q: %w", id, ErrBufferNotFound)
	}
	m.dropLocked(l)
	m.obs.SetLiveBuffers(len(m.live))
	return nil
}

func (m *Manager) dropLocked(l *liveDoc) {
	if l.timer != nil {
		l.timer.Stop()
	}
	delete(m.live, l.id)
	if l.path != "" && m.byPath[l.path] == l.id {
		delete(m.byPath, l.path)
	}
}

func (m *Manager) buffer(id string) (*liveDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("buffer %q: %w", id, ErrBufferNotFound)
	}
	return l, nil
}

// Buffer returns the live document open under id.
func (m *Manager) Buffer(id string) (*document.Document, error) {
	l, err := m.buffer(id)
	if err != nil {
		return nil, err
	}
	return l.doc, nil
}

// Source returns the text source buffer id was opened with.
func (m *Manager) Source(id string) (Source, error) {
	l, err := m.buffer(id)
	if err != nil {
		return nil, err
	}
	return l.src, nil
}

// MarkBufferDirty records that lines [start,end] of buffer id changed and
// schedules a reparse once the buffer has been quiet for the debounce period.
func (m *Manager) MarkBufferDirty(id string, start, end int) error {
	l, err := m.buffer(id)
	if err != nil {
		return err
	}
	n := l.src.Len()
	if !document.InBounds(start, end, n) {
		return fmt.Errorf("buffer %q lines [%d,%d] of %d: %w", id, start, end, n, doctree.ErrInvalidRange)
	}
	if err := l.doc.MarkEdited(start, end, n); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[id] != l {
		return nil
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(m.opts.Debounce, func() { m.settle(l) })
	} else {
		l.timer.Stop()
		l.timer.Reset(m.opts.Debounce)
	}
	return nil
}

// Flush reparses buffer id immediately and publishes its changes.
func (m *Manager) Flush(id string) error {
	l, err := m.buffer(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
	}
	m.mu.Unlock()
	m.settle(l)
	return nil
}

func (m *Manager) settle(l *liveDoc) {
	m.mu.Lock()
	current := !m.closed && m.live[l.id] == l
	m.mu.Unlock()
	if !current {
		return
	}
	l.doc.Refresh()
	changes := l.doc.TakeChanges()
	if len(changes) == 0 {
		return
	}
	m.publish(ChangeEvent{
		DocumentID:    l.doc.ID(),
		BufferID:      l.id,
		Path:          l.path,
		Version:       l.doc.Version(),
		ChangedRanges: changes,
	})
}

// Subscribe returns a channel of change events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (m *Manager) Subscribe() (<-chan ChangeEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan ChangeEvent, 64)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Manager) publish(ev ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
			m.obs.ObserveNotification("delivered")
		default:
			m.obs.ObserveNotification("dropped")
			m.log.Warn("subscriber too slow, dropping change event", "subscriber", id, "document_id", ev.DocumentID)
		}
	}
}

// Stats reports what the manager currently holds.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		LiveBuffers:   len(m.live),
		CachedFiles:   m.files.Len(),
		CacheCapacity: m.files.Capacity(),
		Subscribers:   len(m.subs),
	}
}
