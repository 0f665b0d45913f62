package manager

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dgallion1/zortex/internal/cache"
	"github.com/dgallion1/zortex/internal/document"
	"github.com/dgallion1/zortex/internal/parser"
)

// GetFile returns the document for path. A live buffer open on the path wins;
// otherwise the cached copy is used while its mtime matches the file, and the
// file is reread and parsed when it does not. A file that cannot be read is
// reported as ErrUnavailable and evicted.
func (m *Manager) GetFile(path string) (*document.Document, error) {
	abs := normalizePath(path)
	if doc := m.liveForPath(abs); doc != nil {
		return doc, nil
	}

	info, err := os.Stat(abs)
	if err == nil && info.IsDir() {
		err = fmt.Errorf("%s is a directory", abs)
	}
	if err != nil {
		m.files.Remove(abs)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	prev, ok := m.files.Get(abs)
	if ok && prev.MTime.Equal(info.ModTime()) {
		return prev.Doc, nil
	}
	if ok {
		m.obs.ObserveCache(cache.EventStale)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		m.files.Remove(abs)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	hash := sha256.Sum256(data)

	var doc *document.Document
	if ok && prev.Hash == hash {
		// Touched but unchanged.
		doc = prev.Doc
	} else {
		lines, err := parser.ReadLines(bytes.NewReader(data))
		if err != nil {
			m.files.Remove(abs)
			return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, abs, err)
		}
		doc = document.NewFromLines(lines, document.Options{
			Source:   document.SourceFile,
			Path:     abs,
			Logger:   m.log,
			Observer: m.obs,
		})
	}
	doc.SetMTime(info.ModTime())

	m.mu.Lock()
	if id, live := m.byPath[abs]; live {
		// A buffer was opened on the path while we were reading.
		l := m.live[id]
		m.mu.Unlock()
		return l.doc, nil
	}
	m.files.Add(&cache.Entry{Path: abs, Doc: doc, MTime: info.ModTime(), Hash: hash})
	m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Watch(abs); err != nil {
			m.log.Warn("watch file", "path", abs, "error", err)
		}
	}
	return doc, nil
}

func (m *Manager) liveForPath(abs string) *document.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPath[abs]; ok {
		return m.live[id].doc
	}
	return nil
}

// Sweep drops cached entries whose file changed or disappeared.
func (m *Manager) Sweep() int {
	dropped := 0
	for _, path := range m.files.Keys() {
		e, ok := m.files.Peek(path)
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err == nil && info.ModTime().Equal(e.MTime) {
			continue
		}
		if m.files.Remove(path) {
			dropped++
			m.obs.ObserveCache(cache.EventStale)
		}
	}
	if dropped > 0 {
		m.log.Debug("swept stale cache entries", "dropped", dropped)
	}
	return dropped
}

// ScanFunc receives each document found by Scan.
type ScanFunc func(path string, doc *document.Document) error

// ScanStats counts the outcome of a Scan.
type ScanStats struct {
	Files       int `json:"files"`
	Unavailable int `json:"unavailable"`
}

// Scan walks root for note files and calls fn with each one's document,
// fetching every path through GetFile so a file that became a live buffer
// during the scan is seen live. Files are read with bounded concurrency;
// fn is called from the calling goroutine. An error from fn stops the scan.
func (m *Manager) Scan(ctx context.Context, root string, fn ScanFunc) (ScanStats, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Symlinks are skipped so a scan never leaves root.
		if !d.Type().IsRegular() || !parser.IsSupportedExtension(p) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return ScanStats{}, fmt.Errorf("scan %s: %w", root, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		path string
		doc  *document.Document
		err  error
	}
	results := make(chan result, len(paths))
	sem := make(chan struct{}, m.opts.ScanWorkers)

	go func() {
		for _, p := range paths {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- result{path: p, err: ctx.Err()}
				continue
			}
			go func(p string) {
				defer func() { <-sem }()
				doc, err := m.GetFile(p)
				results <- result{path: p, doc: doc, err: err}
			}(p)
		}
	}()

	var stats ScanStats
	var firstErr error
	for range paths {
		r := <-results
		switch {
		case firstErr != nil:
		case errors.Is(r.err, ErrUnavailable):
			stats.Unavailable++
			m.log.Warn("scan skipped file", "path", r.path, "error", r.err)
		case r.err != nil:
			firstErr = r.err
			cancel()
		default:
			stats.Files++
			if err := fn(r.path, r.doc); err != nil {
				firstErr = err
				cancel()
			}
		}
	}
	return stats, firstErr
}
