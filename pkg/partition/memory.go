// ABOUTME: In-memory partition backends
// ABOUTME: Mutex-guarded maps for tests and embedded single-process use

package partition

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calderhof/revstore/pkg/node"
)

// NewMemorySet builds one in-memory backend per partition.
func NewMemorySet() Set {
	return Set{
		Catalog:     NewMemoryCatalog(),
		Data:        NewMemoryData(),
		Journal:     NewMemoryJournal(),
		WorkingArea: NewMemoryWorkingArea(),
	}
}

// MemoryCatalog holds the current revision under a mutex.
type MemoryCatalog struct {
	mu  sync.Mutex
	rev node.RevisionNumber
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) CurrentRevision(ctx context.Context) (node.RevisionNumber, error) {
	if err := ctx.Err(); err != nil {
		return node.RevisionNumber{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rev, nil
}

func (c *MemoryCatalog) SetRevision(ctx context.Context, rev node.RevisionNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rev = rev
	return nil
}

func (c *MemoryCatalog) CompareAndSetRevision(ctx context.Context, expected, next node.RevisionNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rev.Equal(expected) {
		return fmt.Errorf("%w: expected %s, have %s", ErrCASConflict, expected, c.rev)
	}
	c.rev = next
	return nil
}

// MemoryData stores committed representations keyed by path.
type MemoryData struct {
	mu    sync.RWMutex
	nodes map[node.Path]node.RevisionedNodeRepresentation
}

func NewMemoryData() *MemoryData {
	return &MemoryData{nodes: map[node.Path]node.RevisionedNodeRepresentation{}}
}

func (d *MemoryData) Get(ctx context.Context, path node.Path) (*node.RevisionedNodeRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rep, ok := d.nodes[path]
	if !ok {
		return nil, nil
	}
	out := rep
	out.Content = rep.Content.Clone()
	return &out, nil
}

func (d *MemoryData) Upsert(ctx context.Context, rep node.RevisionedNodeRepresentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	stored := rep
	stored.Content = rep.Content.Clone()
	d.nodes[rep.Path] = stored
	return nil
}

func (d *MemoryData) Delete(ctx context.Context, path node.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, path)
	return nil
}

func (d *MemoryData) Children(ctx context.Context, parent node.Path) ([]node.RevisionedNodeRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []node.RevisionedNodeRepresentation
	for path, rep := range d.nodes {
		if path.Parent() == parent && !path.IsRoot() {
			cp := rep
			cp.Content = rep.Content.Clone()
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.Name() < out[j].Path.Name() })
	return out, nil
}

func (d *MemoryData) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes), nil
}

type journalKey struct {
	path     node.Path
	revision string
}

// MemoryJournal stores entries keyed by (path, revision).
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[journalKey]node.JournalEntryNodeRepresentation
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: map[journalKey]node.JournalEntryNodeRepresentation{}}
}

func (j *MemoryJournal) Append(ctx context.Context, entry node.JournalEntryNodeRepresentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[journalKey{path: entry.Path, revision: entry.Revision.String()}] = entry
	return nil
}

func (j *MemoryJournal) Read(ctx context.Context, path node.Path, from, to node.RevisionNumber) ([]node.JournalEntryNodeRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []node.JournalEntryNodeRepresentation
	for key, entry := range j.entries {
		if key.path != path {
			continue
		}
		if entry.Revision.Less(from) || to.Less(entry.Revision) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Revision.Less(out[k].Revision) })
	return out, nil
}

func (j *MemoryJournal) Discard(ctx context.Context, path node.Path, revision node.RevisionNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, journalKey{path: path, revision: revision.String()})
	return nil
}

type workingKey struct {
	sessionID string
	path      node.Path
}

type refKey struct {
	sessionID string
	nodePath  node.Path
	referring node.Path
}

// MemoryWorkingArea stores staged edits and inverse references per
// session. Only key lookup needs concurrency safety; each session's
// records are mutated by that session alone.
type MemoryWorkingArea struct {
	mu    sync.RWMutex
	reps  map[workingKey]*node.WorkingAreaNodeRepresentation
	refs  map[refKey]node.WorkingAreaInverseNodeReferenceRepresentation
}

func NewMemoryWorkingArea() *MemoryWorkingArea {
	return &MemoryWorkingArea{
		reps: map[workingKey]*node.WorkingAreaNodeRepresentation{},
		refs: map[refKey]node.WorkingAreaInverseNodeReferenceRepresentation{},
	}
}

func (w *MemoryWorkingArea) Upsert(ctx context.Context, rep *node.WorkingAreaNodeRepresentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reps[workingKey{sessionID: rep.SessionID, path: rep.Path}] = cloneWorking(rep)
	return nil
}

func (w *MemoryWorkingArea) Get(ctx context.Context, sessionID string, path node.Path) (*node.WorkingAreaNodeRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	rep, ok := w.reps[workingKey{sessionID: sessionID, path: path}]
	if !ok {
		return nil, nil
	}
	return cloneWorking(rep), nil
}

func (w *MemoryWorkingArea) Delete(ctx context.Context, sessionID string, path node.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.reps, workingKey{sessionID: sessionID, path: path})
	return nil
}

func (w *MemoryWorkingArea) List(ctx context.Context, sessionID string) ([]*node.WorkingAreaNodeRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*node.WorkingAreaNodeRepresentation
	for key, rep := range w.reps {
		if key.sessionID == sessionID {
			out = append(out, cloneWorking(rep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	return out, nil
}

func (w *MemoryWorkingArea) PutReference(ctx context.Context, ref node.WorkingAreaInverseNodeReferenceRepresentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs[refKey{sessionID: ref.SessionID, nodePath: ref.NodePath, referring: ref.ReferringNodePath}] = ref
	return nil
}

func (w *MemoryWorkingArea) ReferencesTo(ctx context.Context, sessionID string, nodePath node.Path) ([]node.InverseNodeReferenceRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []node.InverseNodeReferenceRepresentation
	for key, ref := range w.refs {
		if key.sessionID == sessionID && key.nodePath == nodePath {
			out = append(out, ref.InverseNodeReferenceRepresentation)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReferringNodePath.String() < out[j].ReferringNodePath.String()
	})
	return out, nil
}

func (w *MemoryWorkingArea) DeleteReference(ctx context.Context, sessionID string, nodePath, referring node.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.refs, refKey{sessionID: sessionID, nodePath: nodePath, referring: referring})
	return nil
}

func (w *MemoryWorkingArea) ClearSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for key := range w.reps {
		if key.sessionID == sessionID {
			delete(w.reps, key)
		}
	}
	for key := range w.refs {
		if key.sessionID == sessionID {
			delete(w.refs, key)
		}
	}
	return nil
}

func cloneWorking(rep *node.WorkingAreaNodeRepresentation) *node.WorkingAreaNodeRepresentation {
	out := *rep
	out.Working = rep.Working.Clone()
	if rep.Permanent != nil {
		perm := rep.Permanent.Clone()
		out.Permanent = &perm
	}
	out.RemovedProperties = append([]string(nil), rep.RemovedProperties...)
	return &out
}
