// ABOUTME: Badger-backed partition backends over the shared KV store
// ABOUTME: Catalog CAS rides badger's conflict-checked transactions

package partition

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/calderhof/revstore/pkg/node"
	"github.com/calderhof/revstore/pkg/storage"
)

// NewBadgerSet builds one badger-backed backend per partition, all
// sharing the given KV store.
func NewBadgerSet(kv *storage.KV) Set {
	return Set{
		Catalog:     NewBadgerCatalog(kv),
		Data:        NewBadgerData(kv),
		Journal:     NewBadgerJournal(kv),
		WorkingArea: NewBadgerWorkingArea(kv),
	}
}

// BadgerCatalog persists the current revision under a single key.
type BadgerCatalog struct {
	kv *storage.KV
}

func NewBadgerCatalog(kv *storage.KV) *BadgerCatalog {
	return &BadgerCatalog{kv: kv}
}

func catalogKey() []byte {
	return encodeKey(PREFIX_CATALOG, "revision")
}

func (c *BadgerCatalog) CurrentRevision(ctx context.Context) (node.RevisionNumber, error) {
	var rev node.RevisionNumber
	err := withRetry(ctx, func() error {
		raw, ok, err := c.kv.Get(catalogKey())
		if err != nil {
			return err
		}
		if !ok {
			rev = node.RevisionZero
			return nil
		}
		rev, err = node.ParseRevision(string(raw))
		return err
	})
	if err != nil {
		return node.RevisionNumber{}, fmt.Errorf("catalog read: %w", err)
	}
	return rev, nil
}

func (c *BadgerCatalog) SetRevision(ctx context.Context, rev node.RevisionNumber) error {
	return withRetry(ctx, func() error {
		return c.kv.Set(catalogKey(), []byte(rev.String()))
	})
}

func (c *BadgerCatalog) CompareAndSetRevision(ctx context.Context, expected, next node.RevisionNumber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.kv.Update(func(txn *badger.Txn) error {
		current := node.RevisionZero
		item, err := txn.Get(catalogKey())
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			current, err = node.ParseRevision(string(raw))
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if !current.Equal(expected) {
			return fmt.Errorf("%w: expected %s, have %s", ErrCASConflict, expected, current)
		}
		return txn.Set(catalogKey(), []byte(next.String()))
	})
	// Two racing commits serialize through badger's conflict check;
	// the loser surfaces as a CAS conflict like a stale expectation.
	if storage.IsConflict(err) {
		return fmt.Errorf("%w: transaction conflict", ErrCASConflict)
	}
	return err
}

// BadgerData stores committed representations with a (parent, name)
// child index for tree listing.
type BadgerData struct {
	kv *storage.KV
}

func NewBadgerData(kv *storage.KV) *BadgerData {
	return &BadgerData{kv: kv}
}

func (d *BadgerData) Get(ctx context.Context, path node.Path) (*node.RevisionedNodeRepresentation, error) {
	var rep *node.RevisionedNodeRepresentation
	err := withRetry(ctx, func() error {
		raw, ok, err := d.kv.Get(encodeKey(PREFIX_DATA, path.String()))
		if err != nil {
			return err
		}
		if !ok {
			rep = nil
			return nil
		}
		decoded, err := unmarshalRevisioned(raw)
		if err != nil {
			return err
		}
		rep = &decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("data get %s: %w", path, err)
	}
	return rep, nil
}

func (d *BadgerData) Upsert(ctx context.Context, rep node.RevisionedNodeRepresentation) error {
	value, err := marshalRevisioned(rep)
	if err != nil {
		return fmt.Errorf("data encode %s: %w", rep.Path, err)
	}
	pairs := [][2][]byte{
		{encodeKey(PREFIX_DATA, rep.Path.String()), value},
	}
	if !rep.Path.IsRoot() {
		childKey := encodeKey(PREFIX_DATA_CHILD, rep.Path.Parent().String(), rep.Path.Name())
		pairs = append(pairs, [2][]byte{childKey, []byte(rep.Path.String())})
	}
	return withRetry(ctx, func() error {
		return d.kv.SetBatch(pairs)
	})
}

func (d *BadgerData) Delete(ctx context.Context, path node.Path) error {
	return withRetry(ctx, func() error {
		if err := d.kv.Delete(encodeKey(PREFIX_DATA, path.String())); err != nil {
			return err
		}
		if path.IsRoot() {
			return nil
		}
		return d.kv.Delete(encodeKey(PREFIX_DATA_CHILD, path.Parent().String(), path.Name()))
	})
}

func (d *BadgerData) Children(ctx context.Context, parent node.Path) ([]node.RevisionedNodeRepresentation, error) {
	var paths []node.Path
	prefix := encodeKey(PREFIX_DATA_CHILD, parent.String())
	err := withRetry(ctx, func() error {
		paths = paths[:0]
		return d.kv.ScanPrefix(prefix, func(_, value []byte) bool {
			if p, perr := node.ParsePath(string(value)); perr == nil {
				paths = append(paths, p)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("data children %s: %w", parent, err)
	}

	out := make([]node.RevisionedNodeRepresentation, 0, len(paths))
	for _, p := range paths {
		rep, err := d.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		if rep != nil {
			out = append(out, *rep)
		}
	}
	return out, nil
}

func (d *BadgerData) Count(ctx context.Context) (int, error) {
	count := 0
	err := withRetry(ctx, func() error {
		count = 0
		return d.kv.ScanPrefix(encodeKey(PREFIX_DATA), func(_, _ []byte) bool {
			count++
			return true
		})
	})
	if err != nil {
		return 0, fmt.Errorf("data count: %w", err)
	}
	return count, nil
}

// BadgerJournal stores diff entries keyed by (path, revision); the
// revision key encoding keeps entries in numeric order.
type BadgerJournal struct {
	kv *storage.KV
}

func NewBadgerJournal(kv *storage.KV) *BadgerJournal {
	return &BadgerJournal{kv: kv}
}

func (j *BadgerJournal) Append(ctx context.Context, entry node.JournalEntryNodeRepresentation) error {
	value, err := marshalJournal(entry)
	if err != nil {
		return fmt.Errorf("journal encode %s@%s: %w", entry.Path, entry.Revision, err)
	}
	key := encodeKey(PREFIX_JOURNAL, entry.Path.String(), revisionKey(entry.Revision))
	return withRetry(ctx, func() error {
		return j.kv.Set(key, value)
	})
}

func (j *BadgerJournal) Discard(ctx context.Context, path node.Path, revision node.RevisionNumber) error {
	key := encodeKey(PREFIX_JOURNAL, path.String(), revisionKey(revision))
	return withRetry(ctx, func() error {
		return j.kv.Delete(key)
	})
}

func (j *BadgerJournal) Read(ctx context.Context, path node.Path, from, to node.RevisionNumber) ([]node.JournalEntryNodeRepresentation, error) {
	var out []node.JournalEntryNodeRepresentation
	prefix := encodeKey(PREFIX_JOURNAL, path.String())
	err := withRetry(ctx, func() error {
		out = out[:0]
		var scanErr error
		err := j.kv.ScanPrefix(prefix, func(_, value []byte) bool {
			entry, derr := unmarshalJournal(value)
			if derr != nil {
				scanErr = derr
				return false
			}
			if entry.Revision.Less(from) || to.Less(entry.Revision) {
				return true
			}
			out = append(out, entry)
			return true
		})
		if err != nil {
			return err
		}
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("journal read %s: %w", path, err)
	}
	return out, nil
}

// BadgerWorkingArea stores session-scoped staged edits and inverse
// references.
type BadgerWorkingArea struct {
	kv *storage.KV
}

func NewBadgerWorkingArea(kv *storage.KV) *BadgerWorkingArea {
	return &BadgerWorkingArea{kv: kv}
}

func (w *BadgerWorkingArea) Upsert(ctx context.Context, rep *node.WorkingAreaNodeRepresentation) error {
	value, err := marshalWorking(rep)
	if err != nil {
		return fmt.Errorf("working encode %s: %w", rep.Path, err)
	}
	key := encodeKey(PREFIX_WORKING, rep.SessionID, rep.Path.String())
	return withRetry(ctx, func() error {
		return w.kv.Set(key, value)
	})
}

func (w *BadgerWorkingArea) Get(ctx context.Context, sessionID string, path node.Path) (*node.WorkingAreaNodeRepresentation, error) {
	var rep *node.WorkingAreaNodeRepresentation
	err := withRetry(ctx, func() error {
		raw, ok, err := w.kv.Get(encodeKey(PREFIX_WORKING, sessionID, path.String()))
		if err != nil {
			return err
		}
		if !ok {
			rep = nil
			return nil
		}
		rep, err = unmarshalWorking(raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("working get %s: %w", path, err)
	}
	return rep, nil
}

func (w *BadgerWorkingArea) Delete(ctx context.Context, sessionID string, path node.Path) error {
	return withRetry(ctx, func() error {
		return w.kv.Delete(encodeKey(PREFIX_WORKING, sessionID, path.String()))
	})
}

func (w *BadgerWorkingArea) List(ctx context.Context, sessionID string) ([]*node.WorkingAreaNodeRepresentation, error) {
	var out []*node.WorkingAreaNodeRepresentation
	prefix := encodeKey(PREFIX_WORKING, sessionID)
	err := withRetry(ctx, func() error {
		out = out[:0]
		var scanErr error
		err := w.kv.ScanPrefix(prefix, func(_, value []byte) bool {
			rep, derr := unmarshalWorking(value)
			if derr != nil {
				scanErr = derr
				return false
			}
			out = append(out, rep)
			return true
		})
		if err != nil {
			return err
		}
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("working list %s: %w", sessionID, err)
	}
	return out, nil
}

func (w *BadgerWorkingArea) PutReference(ctx context.Context, ref node.WorkingAreaInverseNodeReferenceRepresentation) error {
	value, err := marshalReference(ref)
	if err != nil {
		return fmt.Errorf("reference encode %s: %w", ref.NodePath, err)
	}
	key := encodeKey(PREFIX_REFERENCE, ref.SessionID, ref.NodePath.String(), ref.ReferringNodePath.String())
	return withRetry(ctx, func() error {
		return w.kv.Set(key, value)
	})
}

func (w *BadgerWorkingArea) ReferencesTo(ctx context.Context, sessionID string, nodePath node.Path) ([]node.InverseNodeReferenceRepresentation, error) {
	var out []node.InverseNodeReferenceRepresentation
	prefix := encodeKey(PREFIX_REFERENCE, sessionID, nodePath.String())
	err := withRetry(ctx, func() error {
		out = out[:0]
		var scanErr error
		err := w.kv.ScanPrefix(prefix, func(_, value []byte) bool {
			ref, derr := unmarshalReference(value)
			if derr != nil {
				scanErr = derr
				return false
			}
			out = append(out, ref.InverseNodeReferenceRepresentation)
			return true
		})
		if err != nil {
			return err
		}
		return scanErr
	})
	if err != nil {
		return nil, fmt.Errorf("references to %s: %w", nodePath, err)
	}
	return out, nil
}

func (w *BadgerWorkingArea) DeleteReference(ctx context.Context, sessionID string, nodePath, referring node.Path) error {
	key := encodeKey(PREFIX_REFERENCE, sessionID, nodePath.String(), referring.String())
	return withRetry(ctx, func() error {
		return w.kv.Delete(key)
	})
}

func (w *BadgerWorkingArea) ClearSession(ctx context.Context, sessionID string) error {
	return withRetry(ctx, func() error {
		if err := w.kv.DeletePrefix(encodeKey(PREFIX_WORKING, sessionID)); err != nil {
			return err
		}
		return w.kv.DeletePrefix(encodeKey(PREFIX_REFERENCE, sessionID))
	})
}
