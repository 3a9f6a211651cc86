// ABOUTME: Msgpack record encoding for partition values
// ABOUTME: Property values are tagged so types survive round trips

package partition

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack"

	"github.com/calderhof/revstore/pkg/node"
)

// Property value kinds on the wire.
const (
	kindString  = "s"
	kindInt     = "i"
	kindLong    = "l"
	kindBool    = "b"
	kindDate    = "d"
	kindList    = "L"
)

type propRecord struct {
	Kind string
	Str  string
	Int  int64
	Bool bool
	Time time.Time

	ListName string
	ListType int
	Elements []propRecord
}

type contentRecord struct {
	NodeType string
	State    int
	Props    map[string]propRecord
}

type revisionedRecord struct {
	Path     string
	Revision string
	Content  contentRecord
}

type journalRecord struct {
	SessionID string
	Path      string
	NodeType  string
	Revision  string
	Prior     *contentRecord
	Content   contentRecord
	Added     map[string]propRecord
	ChangedOld map[string]propRecord
	ChangedNew map[string]propRecord
	Removed   map[string]propRecord
}

type workingRecord struct {
	SessionID string
	Name      string
	Path      string
	NodeType  string
	Revision  string
	Permanent *contentRecord
	Working   contentRecord
	Removed   []string
}

type referenceRecord struct {
	SessionID string
	NodePath  string
	Referring string
	State     int
}

func encodeProp(v any) (propRecord, error) {
	switch val := v.(type) {
	case string:
		return propRecord{Kind: kindString, Str: val}, nil
	case int:
		return propRecord{Kind: kindInt, Int: int64(val)}, nil
	case int64:
		return propRecord{Kind: kindLong, Int: val}, nil
	case bool:
		return propRecord{Kind: kindBool, Bool: val}, nil
	case time.Time:
		return propRecord{Kind: kindDate, Time: val}, nil
	case *node.TypedList:
		rec := propRecord{Kind: kindList, ListName: val.Name, ListType: int(val.Type)}
		for _, el := range val.Elements() {
			elRec, err := encodeProp(el)
			if err != nil {
				return propRecord{}, err
			}
			rec.Elements = append(rec.Elements, elRec)
		}
		return rec, nil
	default:
		return propRecord{}, fmt.Errorf("unsupported property value type %T", v)
	}
}

func decodeProp(rec propRecord) (any, error) {
	switch rec.Kind {
	case kindString:
		return rec.Str, nil
	case kindInt:
		return int(rec.Int), nil
	case kindLong:
		return rec.Int, nil
	case kindBool:
		return rec.Bool, nil
	case kindDate:
		return rec.Time, nil
	case kindList:
		list := node.NewTypedList(rec.ListName, node.ListType(rec.ListType))
		for _, elRec := range rec.Elements {
			el, err := decodeProp(elRec)
			if err != nil {
				return nil, err
			}
			if err := list.Append(el); err != nil {
				return nil, err
			}
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown property kind %q", rec.Kind)
	}
}

func encodeProps(props map[string]any) (map[string]propRecord, error) {
	out := make(map[string]propRecord, len(props))
	for k, v := range props {
		rec, err := encodeProp(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = rec
	}
	return out, nil
}

func decodeProps(recs map[string]propRecord) (map[string]any, error) {
	out := make(map[string]any, len(recs))
	for k, rec := range recs {
		v, err := decodeProp(rec)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func encodeContent(c node.NodeContentRepresentation) (contentRecord, error) {
	props, err := encodeProps(c.Properties)
	if err != nil {
		return contentRecord{}, err
	}
	return contentRecord{NodeType: c.NodeType.String(), State: int(c.State), Props: props}, nil
}

func decodeContent(rec contentRecord) (node.NodeContentRepresentation, error) {
	props, err := decodeProps(rec.Props)
	if err != nil {
		return node.NodeContentRepresentation{}, err
	}
	nt, err := node.ParseNodeType(rec.NodeType)
	if err != nil {
		return node.NodeContentRepresentation{}, err
	}
	return node.NodeContentRepresentation{NodeType: nt, State: node.State(rec.State), Properties: props}, nil
}

func marshalRevisioned(rep node.RevisionedNodeRepresentation) ([]byte, error) {
	content, err := encodeContent(rep.Content)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(revisionedRecord{
		Path:     rep.Path.String(),
		Revision: rep.Revision.String(),
		Content:  content,
	})
}

func unmarshalRevisioned(data []byte) (node.RevisionedNodeRepresentation, error) {
	var rec revisionedRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return node.RevisionedNodeRepresentation{}, err
	}
	path, err := node.ParsePath(rec.Path)
	if err != nil {
		return node.RevisionedNodeRepresentation{}, err
	}
	rev, err := node.ParseRevision(rec.Revision)
	if err != nil {
		return node.RevisionedNodeRepresentation{}, err
	}
	content, err := decodeContent(rec.Content)
	if err != nil {
		return node.RevisionedNodeRepresentation{}, err
	}
	return node.RevisionedNodeRepresentation{Path: path, Revision: rev, Content: content}, nil
}

func marshalJournal(entry node.JournalEntryNodeRepresentation) ([]byte, error) {
	content, err := encodeContent(entry.Content)
	if err != nil {
		return nil, err
	}
	rec := journalRecord{
		SessionID: entry.SessionID,
		Path:      entry.Path.String(),
		NodeType:  entry.NodeType.String(),
		Revision:  entry.Revision.String(),
		Content:   content,
	}
	if entry.PriorContent != nil {
		prior, err := encodeContent(*entry.PriorContent)
		if err != nil {
			return nil, err
		}
		rec.Prior = &prior
	}
	if rec.Added, err = encodeProps(entry.AddedProperties); err != nil {
		return nil, err
	}
	if rec.Removed, err = encodeProps(entry.RemovedProperties); err != nil {
		return nil, err
	}
	rec.ChangedOld = make(map[string]propRecord, len(entry.ChangedProperties))
	rec.ChangedNew = make(map[string]propRecord, len(entry.ChangedProperties))
	for k, ch := range entry.ChangedProperties {
		if rec.ChangedOld[k], err = encodeProp(ch.Old); err != nil {
			return nil, err
		}
		if rec.ChangedNew[k], err = encodeProp(ch.New); err != nil {
			return nil, err
		}
	}
	return msgpack.Marshal(rec)
}

func unmarshalJournal(data []byte) (node.JournalEntryNodeRepresentation, error) {
	var rec journalRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	path, err := node.ParsePath(rec.Path)
	if err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	rev, err := node.ParseRevision(rec.Revision)
	if err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	nt, err := node.ParseNodeType(rec.NodeType)
	if err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	content, err := decodeContent(rec.Content)
	if err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	entry := node.JournalEntryNodeRepresentation{
		SessionID: rec.SessionID,
		Path:      path,
		NodeType:  nt,
		Revision:  rev,
		Content:   content,
	}
	if rec.Prior != nil {
		prior, err := decodeContent(*rec.Prior)
		if err != nil {
			return node.JournalEntryNodeRepresentation{}, err
		}
		entry.PriorContent = &prior
	}
	if entry.AddedProperties, err = decodeProps(rec.Added); err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	if entry.RemovedProperties, err = decodeProps(rec.Removed); err != nil {
		return node.JournalEntryNodeRepresentation{}, err
	}
	entry.ChangedProperties = make(map[string]node.PropertyChange, len(rec.ChangedOld))
	for k, oldRec := range rec.ChangedOld {
		oldVal, err := decodeProp(oldRec)
		if err != nil {
			return node.JournalEntryNodeRepresentation{}, err
		}
		newVal, err := decodeProp(rec.ChangedNew[k])
		if err != nil {
			return node.JournalEntryNodeRepresentation{}, err
		}
		entry.ChangedProperties[k] = node.PropertyChange{Old: oldVal, New: newVal}
	}
	return entry, nil
}

func marshalWorking(rep *node.WorkingAreaNodeRepresentation) ([]byte, error) {
	working, err := encodeContent(rep.Working)
	if err != nil {
		return nil, err
	}
	rec := workingRecord{
		SessionID: rep.SessionID,
		Name:      rep.Name,
		Path:      rep.Path.String(),
		NodeType:  rep.NodeType.String(),
		Revision:  rep.Revision.String(),
		Working:   working,
		Removed:   rep.RemovedProperties,
	}
	if rep.Permanent != nil {
		perm, err := encodeContent(*rep.Permanent)
		if err != nil {
			return nil, err
		}
		rec.Permanent = &perm
	}
	return msgpack.Marshal(rec)
}

func unmarshalWorking(data []byte) (*node.WorkingAreaNodeRepresentation, error) {
	var rec workingRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	path, err := node.ParsePath(rec.Path)
	if err != nil {
		return nil, err
	}
	rev, err := node.ParseRevision(rec.Revision)
	if err != nil {
		return nil, err
	}
	nt, err := node.ParseNodeType(rec.NodeType)
	if err != nil {
		return nil, err
	}
	working, err := decodeContent(rec.Working)
	if err != nil {
		return nil, err
	}
	rep := &node.WorkingAreaNodeRepresentation{
		SessionID:         rec.SessionID,
		Name:              rec.Name,
		Path:              path,
		NodeType:          nt,
		Revision:          rev,
		Working:           working,
		RemovedProperties: rec.Removed,
	}
	if rec.Permanent != nil {
		perm, err := decodeContent(*rec.Permanent)
		if err != nil {
			return nil, err
		}
		rep.Permanent = &perm
	}
	return rep, nil
}

func marshalReference(ref node.WorkingAreaInverseNodeReferenceRepresentation) ([]byte, error) {
	return msgpack.Marshal(referenceRecord{
		SessionID: ref.SessionID,
		NodePath:  ref.NodePath.String(),
		Referring: ref.ReferringNodePath.String(),
		State:     int(ref.State),
	})
}

func unmarshalReference(data []byte) (node.WorkingAreaInverseNodeReferenceRepresentation, error) {
	var rec referenceRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return node.WorkingAreaInverseNodeReferenceRepresentation{}, err
	}
	nodePath, err := node.ParsePath(rec.NodePath)
	if err != nil {
		return node.WorkingAreaInverseNodeReferenceRepresentation{}, err
	}
	referring, err := node.ParsePath(rec.Referring)
	if err != nil {
		return node.WorkingAreaInverseNodeReferenceRepresentation{}, err
	}
	return node.WorkingAreaInverseNodeReferenceRepresentation{
		SessionID: rec.SessionID,
		InverseNodeReferenceRepresentation: node.InverseNodeReferenceRepresentation{
			NodePath:          nodePath,
			ReferringNodePath: referring,
			State:             node.State(rec.State),
		},
	}, nil
}
