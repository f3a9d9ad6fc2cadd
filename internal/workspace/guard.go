// Package workspace watches the document directory for external edits
// and distinguishes them from the app's own saves.
package workspace

import "sync"

// WriteGuard records checksums of files the app itself just wrote so
// the watcher can tell its own saves apart from external edits. Each
// mark is consumed at most once; an external edit producing different
// bytes never matches.
type WriteGuard struct {
	mu    sync.Mutex
	marks map[string]string // path -> checksum of the pending self-write
}

// NewWriteGuard creates an empty guard.
func NewWriteGuard() *WriteGuard {
	return &WriteGuard{marks: make(map[string]string)}
}

// Mark registers an imminent self-write of path with the given content
// checksum. A second Mark for the same path replaces the first.
func (g *WriteGuard) Mark(path, sum string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.marks[path] = sum
}

// Consume reports whether a change event for path with checksum sum is
// the app's own write. A match clears the mark, so only the first
// event for a save is suppressed.
func (g *WriteGuard) Consume(path, sum string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.marks[path] != sum {
		return false
	}
	delete(g.marks, path)
	return true
}

// Forget drops any pending mark for path.
func (g *WriteGuard) Forget(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.marks, path)
}
