// ABOUTME: Session commit protocol
// ABOUTME: Journal, data and search are written before the catalog advances

package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calderhof/revstore/pkg/node"
	"github.com/calderhof/revstore/pkg/partition"
)

// maxCommitAttempts bounds the catalog compare-and-set retry loop.
// Each retry recomputes the diff against the new head revision.
const maxCommitAttempts = 5

// CommitSession publishes the session's staged edits as one new
// revision. All staged paths land at the same revision number; the
// catalog advance is the single point where the revision becomes
// visible to other sessions. On success the session is rebound to the
// new revision with an empty working area.
//
// Journal, data and search writes for an attempt happen before the
// catalog compare-and-set. Readers pin a revision, so entries above
// the head are invisible until the catalog advances. When the
// compare-and-set loses, the attempt's journal and search entries at
// the abandoned revision are removed before the next attempt writes
// at the new head; diffs always run against the baselines captured
// before the first attempt, never against an attempt's own data
// writes.
func (r *Repository) CommitSession(ctx context.Context, sess *Session) (node.RevisionNumber, error) {
	began := time.Now()

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	staged, err := r.parts.WorkingArea.List(ctx, sess.ID)
	if err != nil {
		return node.RevisionNumber{}, err
	}
	if len(staged) == 0 {
		return r.parts.Catalog.CurrentRevision(ctx)
	}

	baselines := make(map[node.Path]*node.RevisionedNodeRepresentation, len(staged))
	for _, w := range staged {
		rep, err := r.parts.Data.Get(ctx, w.Path)
		if err != nil {
			return node.RevisionNumber{}, err
		}
		baselines[w.Path] = rep
	}

	var next node.RevisionNumber
	committed := false
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		current, err := r.parts.Catalog.CurrentRevision(ctx)
		if err != nil {
			return node.RevisionNumber{}, err
		}
		next = current.Next()

		if err := r.writeRevision(ctx, sess, staged, baselines, next); err != nil {
			r.unwindAttempt(ctx, sess, staged, baselines, next)
			r.recordCommit("error", len(staged), next, began)
			return node.RevisionNumber{}, err
		}

		err = r.parts.Catalog.CompareAndSetRevision(ctx, current, next)
		if err == nil {
			committed = true
			break
		}
		if !errors.Is(err, partition.ErrCASConflict) {
			r.unwindAttempt(ctx, sess, staged, baselines, next)
			r.recordCommit("error", len(staged), next, began)
			return node.RevisionNumber{}, err
		}
		if r.stats != nil {
			r.stats.CommitCASConflicts.Inc()
		}
		r.log.Warn().
			Str("session_id", sess.ID).
			Str("revision", next.String()).
			Int("attempt", attempt+1).
			Msg("catalog conflict, recomputing commit")

		// Drop the lost attempt's journal and search rows; the data
		// rows are rewritten at the new candidate revision.
		if err := r.discardRevision(ctx, staged, next); err != nil {
			r.recordCommit("error", len(staged), next, began)
			return node.RevisionNumber{}, err
		}
	}
	if !committed {
		r.unwindAttempt(ctx, sess, staged, baselines, next)
		r.recordCommit("contention", len(staged), next, began)
		return node.RevisionNumber{}, fmt.Errorf("%w: session %s", ErrCommitContention, sess.ID)
	}

	if err := r.parts.WorkingArea.ClearSession(ctx, sess.ID); err != nil {
		return node.RevisionNumber{}, err
	}
	if err := r.index.RemoveWorkingAreaEntries(ctx, sess.ID); err != nil {
		return node.RevisionNumber{}, err
	}

	sess.Revision = next
	if err := r.coord.PutSessionInfo(ctx, sess.ID, next.String()); err != nil {
		return node.RevisionNumber{}, err
	}

	r.recordCommit("success", len(staged), next, began)
	r.log.Info().
		Str("session_id", sess.ID).
		Str("revision", next.String()).
		Int("nodes", len(staged)).
		Dur("duration", time.Since(began)).
		Msg("session committed")
	return next, nil
}

// writeRevision performs the per-path commit steps at the candidate
// revision: diff against the committed baseline, journal append, data
// upsert, search entry. The working-area listing is already ordered
// by path, so parents precede their children.
func (r *Repository) writeRevision(ctx context.Context, sess *Session, staged []*node.WorkingAreaNodeRepresentation, baselines map[node.Path]*node.RevisionedNodeRepresentation, next node.RevisionNumber) error {
	entries := make([]node.SearchEntry, 0, len(staged))
	for _, w := range staged {
		var prior *node.NodeContentRepresentation
		if baseline := baselines[w.Path]; baseline != nil {
			c := baseline.Content.Clone()
			prior = &c
		}

		content := w.EffectiveContent()
		entry := node.ComputeDiff(sess.ID, w.Path, next, prior, content)
		if err := r.parts.Journal.Append(ctx, entry); err != nil {
			return err
		}
		if err := r.parts.Data.Upsert(ctx, node.RevisionedNodeRepresentation{
			Path:     w.Path,
			Revision: next,
			Content:  content,
		}); err != nil {
			return err
		}
		entries = append(entries, node.SearchEntry{
			Path:              w.Path,
			NodeType:          content.NodeType,
			Revision:          next,
			State:             content.State,
			CurrentProperties: content.Properties,
			PriorProperties:   entry.PriorProperties(),
		})
	}
	return r.index.AddEntries(ctx, entries)
}

// discardRevision removes the journal and search entries a lost
// attempt wrote at rev. Nothing above the catalog head is reachable
// by readers, so this only has to run before the next attempt reuses
// the working set, not atomically.
func (r *Repository) discardRevision(ctx context.Context, staged []*node.WorkingAreaNodeRepresentation, rev node.RevisionNumber) error {
	for _, w := range staged {
		if err := r.parts.Journal.Discard(ctx, w.Path, rev); err != nil {
			return err
		}
		if err := r.index.RemoveEntry(ctx, w.Path, rev); err != nil {
			return err
		}
	}
	return nil
}

// unwindAttempt is the abandonment path: the commit will not land, so
// the attempt's journal and search rows are discarded and the data
// partition is restored to the pre-commit baselines. Best effort; the
// commit already failed and the working area still holds the edits.
func (r *Repository) unwindAttempt(ctx context.Context, sess *Session, staged []*node.WorkingAreaNodeRepresentation, baselines map[node.Path]*node.RevisionedNodeRepresentation, rev node.RevisionNumber) {
	if err := r.discardRevision(ctx, staged, rev); err != nil {
		r.log.Error().Err(err).Str("session_id", sess.ID).Str("revision", rev.String()).
			Msg("failed to discard abandoned commit attempt")
	}
	for _, w := range staged {
		var err error
		if baseline := baselines[w.Path]; baseline != nil {
			err = r.parts.Data.Upsert(ctx, *baseline)
		} else {
			err = r.parts.Data.Delete(ctx, w.Path)
		}
		if err != nil {
			r.log.Error().Err(err).Str("session_id", sess.ID).Str("path", w.Path.String()).
				Msg("failed to restore data baseline after abandoned commit")
		}
	}
}

func (r *Repository) recordCommit(status string, nodeCount int, rev node.RevisionNumber, began time.Time) {
	if r.stats == nil {
		return
	}
	v, ok := revisionGauge(rev)
	if !ok {
		v = -1
	}
	r.stats.RecordCommit(status, nodeCount, v, time.Since(began))
}
