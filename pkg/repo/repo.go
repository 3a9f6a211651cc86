// ABOUTME: Session and metadata manager over the partition set
// ABOUTME: Sessions stage edits in the working area until commit

package repo

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/calderhof/revstore/internal/metrics"
	"github.com/calderhof/revstore/pkg/binary"
	"github.com/calderhof/revstore/pkg/node"
	"github.com/calderhof/revstore/pkg/partition"
	"github.com/calderhof/revstore/pkg/search"
)

// Session binds a client to a repository revision. All reads through
// the session see the committed state as of Revision plus the
// session's own staged edits. Revision advances when the session
// commits.
type Session struct {
	ID       string
	Revision node.RevisionNumber
	OpenedAt time.Time
}

// Options configures a Repository. Partitions and Index are required;
// the rest default to process-local or disabled implementations.
type Options struct {
	Partitions  partition.Set
	Index       search.Index
	Binary      *binary.Dedup
	Coordinator Coordinator
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Repository is the metadata engine. It owns the commit protocol and
// the session lifecycle; storage and search adapters are injected.
type Repository struct {
	parts partition.Set
	index search.Index
	blobs *binary.Dedup
	coord Coordinator
	log   zerolog.Logger
	stats *metrics.Metrics

	// commitMu serialises commits within this process. Cross-process
	// conflicts are caught by the catalog compare-and-set.
	commitMu sync.Mutex
}

func New(opts Options) *Repository {
	coord := opts.Coordinator
	if coord == nil {
		coord = NewProcessLocalCoordinator()
	}
	return &Repository{
		parts: opts.Partitions,
		index: opts.Index,
		blobs: opts.Binary,
		coord: coord,
		log:   opts.Logger,
		stats: opts.Metrics,
	}
}

// Bootstrap initialises an empty repository: revision zero in the
// catalog. Calling it on a populated repository is a no-op. The global
// lock keeps two nodes of a cluster from racing the first write.
func (r *Repository) Bootstrap(ctx context.Context) error {
	return r.coord.ExecuteWithGlobalLock(ctx, "bootstrap", func(ctx context.Context) error {
		current, err := r.parts.Catalog.CurrentRevision(ctx)
		if err != nil {
			return err
		}
		if !current.Equal(node.RevisionZero) {
			return nil
		}
		return r.parts.Catalog.SetRevision(ctx, node.RevisionZero)
	})
}

// OpenSession starts a session bound to the current catalog revision.
func (r *Repository) OpenSession(ctx context.Context) (*Session, error) {
	current, err := r.parts.Catalog.CurrentRevision(ctx)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:       ulid.Make().String(),
		Revision: current,
		OpenedAt: time.Now(),
	}
	if err := r.coord.PutSessionInfo(ctx, sess.ID, current.String()); err != nil {
		return nil, err
	}
	if r.stats != nil {
		r.stats.SessionsOpened.Inc()
	}
	r.log.Debug().Str("session_id", sess.ID).Str("revision", current.String()).Msg("session opened")
	return sess, nil
}

// CloseSession discards any uncommitted staged state and releases the
// session. Committed work is unaffected.
func (r *Repository) CloseSession(ctx context.Context, sess *Session) error {
	if err := r.DiscardSession(ctx, sess); err != nil {
		return err
	}
	if err := r.coord.RemoveSessionInfo(ctx, sess.ID); err != nil {
		return err
	}
	if r.stats != nil {
		r.stats.SessionsClosed.Inc()
	}
	r.log.Debug().Str("session_id", sess.ID).Msg("session closed")
	return nil
}

// DiscardSession drops all staged edits and references for the
// session without committing them.
func (r *Repository) DiscardSession(ctx context.Context, sess *Session) error {
	if err := r.parts.WorkingArea.ClearSession(ctx, sess.ID); err != nil {
		return err
	}
	return r.index.RemoveWorkingAreaEntries(ctx, sess.ID)
}

// Search runs a full-text query against the session's view: the
// committed state at the session revision plus its own staged edits.
func (r *Repository) Search(ctx context.Context, sess *Session, text string, start, count int) ([]node.Path, error) {
	began := time.Now()
	paths, err := r.index.Search(ctx, search.Query{
		SessionID: sess.ID,
		Revision:  sess.Revision,
		Text:      text,
		Start:     start,
		Count:     count,
	})
	if err != nil {
		return nil, err
	}
	if r.stats != nil {
		r.stats.RecordSearch(len(paths), time.Since(began))
	}
	r.log.Debug().
		Str("session_id", sess.ID).
		Str("query", text).
		Int("results", len(paths)).
		Dur("duration", time.Since(began)).
		Msg("search")
	return paths, nil
}

// History returns the journal entries for a path between the two
// revisions, inclusive, in ascending revision order.
func (r *Repository) History(ctx context.Context, path node.Path, from, to node.RevisionNumber) ([]node.JournalEntryNodeRepresentation, error) {
	return r.parts.Journal.Read(ctx, path, from, to)
}

// CurrentRevision reads the repository head revision from the catalog.
func (r *Repository) CurrentRevision(ctx context.Context) (node.RevisionNumber, error) {
	return r.parts.Catalog.CurrentRevision(ctx)
}

// Stats summarises repository state for the admin surface.
type Stats struct {
	Revision  node.RevisionNumber
	NodeCount int
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	current, err := r.parts.Catalog.CurrentRevision(ctx)
	if err != nil {
		return Stats{}, err
	}
	count, err := r.parts.Data.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Revision: current, NodeCount: count}, nil
}

// StoreBinary writes a blob through the deduplicating store. It is
// independent of the session commit protocol: blobs are
// content-addressed and immutable once stored.
func (r *Repository) StoreBinary(ctx context.Context, src io.Reader, length int64) (node.FileInfo, error) {
	return r.blobs.Store(ctx, src, length)
}

// OpenBinary opens a previously stored blob by its permanent path.
func (r *Repository) OpenBinary(path string) (io.ReadCloser, error) {
	return r.blobs.Open(path)
}

// Close releases the search index. Partition stores are owned by the
// caller that opened them.
func (r *Repository) Close() error {
	return r.index.Close()
}

func revisionGauge(rev node.RevisionNumber) (float64, bool) {
	v, err := strconv.ParseUint(rev.String(), 16, 64)
	if err != nil {
		return 0, false
	}
	return float64(v), true
}
