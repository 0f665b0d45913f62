// Package cache keeps recently read file-backed documents in a bounded LRU.
package cache

import (
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgallion1/zortex/internal/document"
)

// DefaultCapacity is the number of file documents kept when none is configured.
const DefaultCapacity = 20

// Cache events reported to an Observer.
const (
	EventHit   = "hit"
	EventMiss  = "miss"
	EventEvict = "evict"
	EventStale = "stale"
)

// Observer receives cache traffic.
type Observer interface {
	ObserveCache(event string)
}

type nopObserver struct{}

func (nopObserver) ObserveCache(string) {}

// Entry is a parsed file together with the modification time and content
// hash it was read at. Entries are immutable once added.
type Entry struct {
	Path  string
	Doc   *document.Document
	MTime time.Time
	Hash  [32]byte
}

// FileCache is a fixed-capacity LRU of file documents keyed by absolute path.
// It is safe for concurrent use.
type FileCache struct {
	lru      *lru.Cache[string, *Entry]
	capacity int
	log      *slog.Logger
	obs      Observer
}

// New creates a cache holding at most capacity entries.
func New(capacity int, log *slog.Logger, obs Observer) (*FileCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	c, err := lru.New[string, *Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &FileCache{lru: c, capacity: capacity, log: log, obs: obs}, nil
}

// Get returns the entry for path and marks it most recently used.
func (c *FileCache) Get(path string) (*Entry, bool) {
	e, ok := c.lru.Get(path)
	if ok {
		c.obs.ObserveCache(EventHit)
	} else {
		c.obs.ObserveCache(EventMiss)
	}
	return e, ok
}

// Peek returns the entry for path without touching its recency.
func (c *FileCache) Peek(path string) (*Entry, bool) {
	return c.lru.Peek(path)
}

// Contains reports whether path is cached without touching its recency.
func (c *FileCache) Contains(path string) bool {
	return c.lru.Contains(path)
}

// Add stores e, evicting the least recently used entry when full.
func (c *FileCache) Add(e *Entry) {
	if c.lru.Add(e.Path, e) {
		c.obs.ObserveCache(EventEvict)
	}
	if n := c.lru.Len(); n > c.capacity {
		c.log.Error("file cache over capacity, purging", "len", n, "capacity", c.capacity)
		c.lru.Purge()
	}
}

// Remove drops path and reports whether it was present.
func (c *FileCache) Remove(path string) bool {
	return c.lru.Remove(path)
}

// Purge drops every entry.
func (c *FileCache) Purge() {
	c.lru.Purge()
}

// Keys returns cached paths from least to most recently used.
func (c *FileCache) Keys() []string {
	return c.lru.Keys()
}

func (c *FileCache) Len() int {
	return c.lru.Len()
}

func (c *FileCache) Capacity() int {
	return c.capacity
}
