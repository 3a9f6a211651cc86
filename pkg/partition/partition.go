// ABOUTME: Partition contracts for catalog, data, journal and working area
// ABOUTME: Backends are selected by configuration at process startup

package partition

import (
	"context"
	"errors"
	"time"

	"github.com/calderhof/revstore/pkg/node"
)

// ErrCASConflict is returned when a compare-and-set on the catalog
// revision observes a different current value. Callers recompute
// against the new current revision and retry.
var ErrCASConflict = errors.New("catalog revision compare-and-set conflict")

// Catalog holds the repository's single current revision number.
type Catalog interface {
	// CurrentRevision returns the current repository revision; a fresh
	// catalog reports revision 0.
	CurrentRevision(ctx context.Context) (node.RevisionNumber, error)

	// SetRevision writes the revision unconditionally (bootstrap only).
	SetRevision(ctx context.Context, rev node.RevisionNumber) error

	// CompareAndSetRevision atomically advances the revision from
	// expected to next, failing with ErrCASConflict when the stored
	// value is not expected.
	CompareAndSetRevision(ctx context.Context, expected, next node.RevisionNumber) error
}

// Data stores the committed node representation per path, always at
// the latest revision that touched the path.
type Data interface {
	// Get returns the committed representation for path, or nil when
	// no commit ever touched it.
	Get(ctx context.Context, path node.Path) (*node.RevisionedNodeRepresentation, error)

	// Upsert writes a committed representation. Upserts are idempotent
	// per (path, revision) so commit replays are safe.
	Upsert(ctx context.Context, rep node.RevisionedNodeRepresentation) error

	// Delete removes the committed representation for path. Used to
	// unwind a commit attempt that never reached the catalog.
	Delete(ctx context.Context, path node.Path) error

	// Children returns the committed representations directly under
	// parent, ordered by name.
	Children(ctx context.Context, parent node.Path) ([]node.RevisionedNodeRepresentation, error)

	// Count returns the number of paths with a committed representation.
	Count(ctx context.Context) (int, error)
}

// Journal is the append-only, per-revision log of node-level diffs.
type Journal interface {
	// Append writes a journal entry keyed by (path, revision).
	// Re-appending the same key is an idempotent upsert.
	Append(ctx context.Context, entry node.JournalEntryNodeRepresentation) error

	// Read returns the entries for path with from <= revision <= to,
	// in ascending revision order.
	Read(ctx context.Context, path node.Path, from, to node.RevisionNumber) ([]node.JournalEntryNodeRepresentation, error)

	// Discard removes the entry at (path, revision) if present. Only
	// entries above the catalog head are ever discarded; published
	// history stays append-only.
	Discard(ctx context.Context, path node.Path, revision node.RevisionNumber) error
}

// WorkingArea stores per-session staged edits and the session-scoped
// inverse-reference index.
type WorkingArea interface {
	Upsert(ctx context.Context, rep *node.WorkingAreaNodeRepresentation) error
	Get(ctx context.Context, sessionID string, path node.Path) (*node.WorkingAreaNodeRepresentation, error)
	Delete(ctx context.Context, sessionID string, path node.Path) error

	// List returns the session's staged representations ordered by
	// path (parents before children).
	List(ctx context.Context, sessionID string) ([]*node.WorkingAreaNodeRepresentation, error)

	PutReference(ctx context.Context, ref node.WorkingAreaInverseNodeReferenceRepresentation) error
	ReferencesTo(ctx context.Context, sessionID string, nodePath node.Path) ([]node.InverseNodeReferenceRepresentation, error)
	DeleteReference(ctx context.Context, sessionID string, nodePath, referring node.Path) error

	// ClearSession drops every staged representation and inverse
	// reference owned by the session.
	ClearSession(ctx context.Context, sessionID string) error
}

// Set bundles one backend of each partition.
type Set struct {
	Catalog     Catalog
	Data        Data
	Journal     Journal
	WorkingArea WorkingArea
}

// retry policy for transient backend I/O at the adapter boundary.
const (
	retryAttempts = 3
	retryBaseWait = 25 * time.Millisecond
)

// withRetry runs fn up to retryAttempts times with doubling waits,
// respecting context cancellation. CAS conflicts are never retried
// here; they carry commit-protocol meaning.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil || errors.Is(err, ErrCASConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
