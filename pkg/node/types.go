// ABOUTME: Node representation data model
// ABOUTME: Committed, working-area, journal and search record shapes

package node

// NodeContentRepresentation is the mutable payload of a node,
// independent of its path and revision.
type NodeContentRepresentation struct {
	NodeType   NodeType
	State      State
	Properties map[string]any
}

// Clone returns a deep-enough copy: the property map is copied, values
// are shared (values are treated as immutable once set).
func (c NodeContentRepresentation) Clone() NodeContentRepresentation {
	props := make(map[string]any, len(c.Properties))
	for k, v := range c.Properties {
		props[k] = v
	}
	return NodeContentRepresentation{NodeType: c.NodeType, State: c.State, Properties: props}
}

// NodeRepresentation identifies a node without revision context.
// Each partition returns its own copy; representations are never
// shared mutably across partitions.
type NodeRepresentation struct {
	Path    Path
	Content NodeContentRepresentation
}

// RevisionedNodeRepresentation is the immutable committed form of a
// node. Once written to the data or journal partition it is never
// mutated, only superseded by a later revision's entry.
type RevisionedNodeRepresentation struct {
	Path     Path
	Revision RevisionNumber
	Content  NodeContentRepresentation
}

// WorkingAreaNodeRepresentation is a per-session staged edit of one
// path. It is owned exclusively by its session until commit or discard.
type WorkingAreaNodeRepresentation struct {
	SessionID string
	Name      string
	Path      Path
	NodeType  NodeType
	Revision  RevisionNumber

	// Permanent is the committed baseline at staging time; nil for a
	// node created in this session.
	Permanent *NodeContentRepresentation

	// Working carries the staged changes. Working property values take
	// precedence over the baseline; properties removed in the session
	// are tracked separately so merging can drop them.
	Working NodeContentRepresentation

	// RemovedProperties names baseline properties deleted in this
	// session.
	RemovedProperties []string
}

// EffectiveContent merges the working changes over the permanent
// baseline. Working values win; removed properties are absent.
func (w *WorkingAreaNodeRepresentation) EffectiveContent() NodeContentRepresentation {
	if w.Permanent == nil {
		return w.Working.Clone()
	}
	merged := w.Permanent.Clone()
	merged.NodeType = w.Working.NodeType
	merged.State = w.Working.State
	for _, name := range w.RemovedProperties {
		delete(merged.Properties, name)
	}
	for k, v := range w.Working.Properties {
		merged.Properties[k] = v
	}
	return merged
}

// PropertyChange records an old/new value pair for a changed property.
type PropertyChange struct {
	Old any
	New any
}

// JournalEntryNodeRepresentation is a computed-once diff between a
// node's prior committed content and its new content, recorded at the
// revision the change was committed under. Immutable after
// construction.
type JournalEntryNodeRepresentation struct {
	SessionID string
	Path      Path
	NodeType  NodeType
	Revision  RevisionNumber

	// PriorContent is nil for a node first committed at this revision.
	PriorContent *NodeContentRepresentation
	Content      NodeContentRepresentation

	AddedProperties   map[string]any
	ChangedProperties map[string]PropertyChange
	RemovedProperties map[string]any
}

// PriorProperties returns the just-superseded values keyed by property
// name: old values of changed properties plus removed values. These
// feed the search index's shadow field.
func (j *JournalEntryNodeRepresentation) PriorProperties() map[string]any {
	prior := make(map[string]any, len(j.ChangedProperties)+len(j.RemovedProperties))
	for k, ch := range j.ChangedProperties {
		prior[k] = ch.Old
	}
	for k, v := range j.RemovedProperties {
		prior[k] = v
	}
	return prior
}

// InverseNodeReferenceRepresentation records that ReferringNodePath
// holds a reference to NodePath, for referential-integrity checks on
// delete.
type InverseNodeReferenceRepresentation struct {
	NodePath          Path
	ReferringNodePath Path
	State             State
}

// WorkingAreaInverseNodeReferenceRepresentation is the session-scoped
// variant of an inverse reference.
type WorkingAreaInverseNodeReferenceRepresentation struct {
	SessionID string
	InverseNodeReferenceRepresentation
}

// SearchEntry is the unit submitted to the search index on commit.
// CurrentProperties is the full new property set; PriorProperties holds
// the just-superseded values (see JournalEntryNodeRepresentation).
type SearchEntry struct {
	Path              Path
	NodeType          NodeType
	Revision          RevisionNumber
	State             State
	CurrentProperties map[string]any
	PriorProperties   map[string]any
}

// FileInfo is the binary store's handle to a stored blob.
type FileInfo struct {
	Path string
	Size int64
}
