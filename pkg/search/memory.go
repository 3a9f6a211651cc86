// ABOUTME: In-memory search index backend
// ABOUTME: Reference implementation of the revision-visibility algorithm

package search

import (
	"context"
	"sort"
	"sync"

	"github.com/calderhof/revstore/pkg/node"
)

type memoryEntry struct {
	path     node.Path
	revision node.RevisionNumber
	state    node.State
	all      string
	oldAll   string
}

// MemoryIndex keeps one entry per (path, revision) in process memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry            // (path, revisionKey) -> entry
	shadow  map[string]map[node.Path]string   // sessionID -> path -> all text
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: map[string]memoryEntry{},
		shadow:  map[string]map[node.Path]string{},
	}
}

func entryKey(path node.Path, rev node.RevisionNumber) string {
	return path.String() + "\x00" + revisionKey(rev)
}

func (m *MemoryIndex) AddEntry(ctx context.Context, entry node.SearchEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey(entry.Path, entry.Revision)] = memoryEntry{
		path:     entry.Path,
		revision: entry.Revision,
		state:    entry.State,
		all:      currentText(entry),
		oldAll:   priorText(entry),
	}
	return nil
}

func (m *MemoryIndex) AddEntries(ctx context.Context, entries []node.SearchEntry) error {
	for _, entry := range entries {
		if err := m.AddEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryIndex) RemoveEntry(ctx context.Context, path node.Path, revision node.RevisionNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryKey(path, revision))
	return nil
}

func (m *MemoryIndex) AddWorkingAreaEntry(ctx context.Context, sessionID string, entry node.SearchEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byPath, ok := m.shadow[sessionID]
	if !ok {
		byPath = map[node.Path]string{}
		m.shadow[sessionID] = byPath
	}
	byPath[entry.Path] = currentText(entry)
	return nil
}

func (m *MemoryIndex) RemoveWorkingAreaEntries(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shadow, sessionID)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]node.Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Matched entries with revision <= q.Revision, grouped by path,
	// keeping the highest revision per path.
	top := map[node.Path]memoryEntry{}
	for _, e := range m.entries {
		if q.Revision.Less(e.revision) {
			continue
		}
		if !matchText(e.all, q.Text) && !matchText(e.oldAll, q.Text) {
			continue
		}
		if best, ok := top[e.path]; !ok || best.revision.Less(e.revision) {
			top[e.path] = e
		}
	}

	// Session-scoped shadow entries represent uncommitted edits and
	// replace the committed rows for their paths.
	shadow := m.shadow[q.SessionID]

	var paths []node.Path
	for path, e := range top {
		if _, staged := shadow[path]; staged {
			continue
		}
		// The winning entry must match on current values; an old_all-only
		// match means the path's visible content no longer matches.
		if e.state != node.StateNormal || !matchText(e.all, q.Text) {
			continue
		}
		paths = append(paths, path)
	}
	for path, all := range shadow {
		if matchText(all, q.Text) {
			paths = append(paths, path)
		}
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return page(paths, q.Start, q.Count), nil
}

func (m *MemoryIndex) Close() error { return nil }
