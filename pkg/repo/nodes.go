// ABOUTME: Session-scoped node reads and staged writes
// ABOUTME: Edits land in the working area, never directly in data

package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/calderhof/revstore/pkg/node"
)

// GetNode resolves a path through the session's view: a staged edit
// wins over the committed node, and a staged or committed tombstone
// reads as absent. Returns nil with no error when the node does not
// exist.
func (r *Repository) GetNode(ctx context.Context, sess *Session, path node.Path) (*node.NodeRepresentation, error) {
	staged, err := r.parts.WorkingArea.Get(ctx, sess.ID, path)
	if err != nil {
		return nil, err
	}
	if staged != nil {
		if staged.Working.State == node.StateDeleted {
			return nil, nil
		}
		return &node.NodeRepresentation{Path: path, Content: staged.EffectiveContent()}, nil
	}

	committed, err := r.parts.Data.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if committed == nil || committed.Content.State == node.StateDeleted {
		return nil, nil
	}
	return &node.NodeRepresentation{Path: path, Content: committed.Content}, nil
}

// GetChildren lists the live direct children of parent as the session
// sees them: committed children merged with the session's staged
// creates, updates and deletes, sorted by path.
func (r *Repository) GetChildren(ctx context.Context, sess *Session, parent node.Path) ([]node.NodeRepresentation, error) {
	byPath := make(map[string]node.NodeRepresentation)

	committed, err := r.parts.Data.Children(ctx, parent)
	if err != nil {
		return nil, err
	}
	for _, rep := range committed {
		if rep.Content.State == node.StateDeleted {
			continue
		}
		byPath[rep.Path.String()] = node.NodeRepresentation{Path: rep.Path, Content: rep.Content}
	}

	staged, err := r.parts.WorkingArea.List(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	for _, w := range staged {
		if w.Path.IsRoot() || w.Path.Parent() != parent {
			continue
		}
		if w.Working.State == node.StateDeleted {
			delete(byPath, w.Path.String())
			continue
		}
		byPath[w.Path.String()] = node.NodeRepresentation{Path: w.Path, Content: w.EffectiveContent()}
	}

	out := make([]node.NodeRepresentation, 0, len(byPath))
	for _, rep := range byPath {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	return out, nil
}

// CreateNode stages a new node at path. The path must not hold a live
// node in the session's view; creating over a tombstone is allowed.
func (r *Repository) CreateNode(ctx context.Context, sess *Session, path node.Path, content node.NodeContentRepresentation) error {
	if err := content.NodeType.Validate(); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	staged, err := r.parts.WorkingArea.Get(ctx, sess.ID, path)
	if err != nil {
		return err
	}
	if staged != nil && staged.Working.State != node.StateDeleted {
		return fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	committed, err := r.parts.Data.Get(ctx, path)
	if err != nil {
		return err
	}
	if staged == nil && committed != nil && committed.Content.State != node.StateDeleted {
		return fmt.Errorf("%w: %s", ErrNodeExists, path)
	}

	content.State = node.StateNormal
	w := &node.WorkingAreaNodeRepresentation{
		SessionID: sess.ID,
		Name:      path.Name(),
		Path:      path,
		NodeType:  content.NodeType,
		Revision:  sess.Revision,
		Working:   content.Clone(),
	}
	if committed != nil {
		prior := committed.Content.Clone()
		w.Permanent = &prior
		// Creating over a tombstone replaces it wholesale.
		w.RemovedProperties = missingKeys(prior.Properties, content.Properties)
	}
	if err := r.parts.WorkingArea.Upsert(ctx, w); err != nil {
		return err
	}
	return r.stageSearchEntry(ctx, sess, w)
}

// UpdateNode stages a full replacement of the node's content. The
// node must exist in the session's view. Properties present in the
// committed baseline but absent from content are removed.
func (r *Repository) UpdateNode(ctx context.Context, sess *Session, path node.Path, content node.NodeContentRepresentation) error {
	if err := content.NodeType.Validate(); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	staged, err := r.parts.WorkingArea.Get(ctx, sess.ID, path)
	if err != nil {
		return err
	}
	committed, err := r.parts.Data.Get(ctx, path)
	if err != nil {
		return err
	}

	visible := staged != nil && staged.Working.State != node.StateDeleted
	if !visible && staged == nil {
		visible = committed != nil && committed.Content.State != node.StateDeleted
	}
	if !visible {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	content.State = node.StateNormal
	w := &node.WorkingAreaNodeRepresentation{
		SessionID: sess.ID,
		Name:      path.Name(),
		Path:      path,
		NodeType:  content.NodeType,
		Revision:  sess.Revision,
		Working:   content.Clone(),
	}
	if staged != nil {
		w.Permanent = staged.Permanent
	} else if committed != nil {
		prior := committed.Content.Clone()
		w.Permanent = &prior
	}
	if w.Permanent != nil {
		w.RemovedProperties = missingKeys(w.Permanent.Properties, content.Properties)
	}
	if err := r.parts.WorkingArea.Upsert(ctx, w); err != nil {
		return err
	}
	return r.stageSearchEntry(ctx, sess, w)
}

// DeleteNode stages a tombstone for the node. Deletion is refused
// while the session holds live references pointing at the path.
func (r *Repository) DeleteNode(ctx context.Context, sess *Session, path node.Path) error {
	refs, err := r.parts.WorkingArea.ReferencesTo(ctx, sess.ID, path)
	if err != nil {
		return err
	}
	var live []node.Path
	for _, ref := range refs {
		if ref.State == node.StateNormal {
			live = append(live, ref.ReferringNodePath)
		}
	}
	if len(live) > 0 {
		return &ReferentialIntegrityError{Path: path, Referrers: live}
	}

	staged, err := r.parts.WorkingArea.Get(ctx, sess.ID, path)
	if err != nil {
		return err
	}
	committed, err := r.parts.Data.Get(ctx, path)
	if err != nil {
		return err
	}

	var baseline node.NodeContentRepresentation
	switch {
	case staged != nil && staged.Working.State != node.StateDeleted:
		baseline = staged.EffectiveContent()
	case staged == nil && committed != nil && committed.Content.State != node.StateDeleted:
		baseline = committed.Content
	default:
		return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
	}

	working := baseline.Clone()
	working.State = node.StateDeleted
	w := &node.WorkingAreaNodeRepresentation{
		SessionID: sess.ID,
		Name:      path.Name(),
		Path:      path,
		NodeType:  working.NodeType,
		Revision:  sess.Revision,
		Working:   working,
	}
	if committed != nil {
		prior := committed.Content.Clone()
		w.Permanent = &prior
	}
	if err := r.parts.WorkingArea.Upsert(ctx, w); err != nil {
		return err
	}
	return r.stageSearchEntry(ctx, sess, w)
}

// AddReference records, in the session, that referring points at
// target. References only constrain deletion within the session that
// holds them.
func (r *Repository) AddReference(ctx context.Context, sess *Session, target, referring node.Path) error {
	return r.parts.WorkingArea.PutReference(ctx, node.WorkingAreaInverseNodeReferenceRepresentation{
		SessionID: sess.ID,
		InverseNodeReferenceRepresentation: node.InverseNodeReferenceRepresentation{
			NodePath:          target,
			ReferringNodePath: referring,
			State:             node.StateNormal,
		},
	})
}

// RemoveReference drops a session reference from referring to target.
func (r *Repository) RemoveReference(ctx context.Context, sess *Session, target, referring node.Path) error {
	return r.parts.WorkingArea.DeleteReference(ctx, sess.ID, target, referring)
}

// stageSearchEntry keeps the session's shadow index in step with the
// working area so staged edits are searchable before commit. A staged
// tombstone gets an empty entry, hiding the path from the session.
func (r *Repository) stageSearchEntry(ctx context.Context, sess *Session, w *node.WorkingAreaNodeRepresentation) error {
	entry := node.SearchEntry{
		Path:     w.Path,
		NodeType: w.NodeType,
		State:    w.Working.State,
	}
	if w.Working.State != node.StateDeleted {
		entry.CurrentProperties = w.EffectiveContent().Properties
	}
	return r.index.AddWorkingAreaEntry(ctx, sess.ID, entry)
}

func missingKeys(baseline, current map[string]any) []string {
	var out []string
	for k := range baseline {
		if _, ok := current[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
