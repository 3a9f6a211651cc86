// ABOUTME: Pure diff computation between node contents
// ABOUTME: Produces the journal entry for one committed change

package node

import (
	"reflect"
	"time"
)

// ComputeDiff builds the journal entry describing the change from a
// prior committed content (nil for new nodes) to the new content, at
// the given revision. The added, changed and removed sets exactly
// partition the symmetric difference of the two property maps.
// ComputeDiff is pure and never fails on well-formed inputs.
func ComputeDiff(sessionID string, path Path, revision RevisionNumber, prior *NodeContentRepresentation, content NodeContentRepresentation) JournalEntryNodeRepresentation {
	entry := JournalEntryNodeRepresentation{
		SessionID:         sessionID,
		Path:              path,
		NodeType:          content.NodeType,
		Revision:          revision,
		Content:           content.Clone(),
		AddedProperties:   map[string]any{},
		ChangedProperties: map[string]PropertyChange{},
		RemovedProperties: map[string]any{},
	}

	var priorProps map[string]any
	if prior != nil {
		clone := prior.Clone()
		entry.PriorContent = &clone
		priorProps = clone.Properties
	}

	for name, newVal := range entry.Content.Properties {
		oldVal, existed := priorProps[name]
		switch {
		case !existed:
			entry.AddedProperties[name] = newVal
		case !valueEqual(oldVal, newVal):
			entry.ChangedProperties[name] = PropertyChange{Old: oldVal, New: newVal}
		}
	}
	for name, oldVal := range priorProps {
		if _, present := entry.Content.Properties[name]; !present {
			entry.RemovedProperties[name] = oldVal
		}
	}

	return entry
}

// valueEqual compares property values. Times compare by instant,
// typed lists element-wise, everything else structurally.
func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case *TypedList:
		bv, ok := b.(*TypedList)
		return ok && av.Equal(bv)
	default:
		return reflect.DeepEqual(a, b)
	}
}
