// ABOUTME: Node type identifiers and node lifecycle state
// ABOUTME: NodeType is a namespace:name:version triple

package node

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidNodeType is returned for malformed node type strings.
var ErrInvalidNodeType = errors.New("invalid node type")

// NodeType identifies the type of a node as namespace:name:version.
type NodeType struct {
	Namespace string
	Name      string
	Version   int
}

// ParseNodeType parses the canonical "namespace:name:version" form.
// The version must be a positive integer.
func ParseNodeType(s string) (NodeType, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return NodeType{}, fmt.Errorf("%w: %q", ErrInvalidNodeType, s)
	}
	if parts[0] == "" || parts[1] == "" {
		return NodeType{}, fmt.Errorf("%w: empty namespace or name: %q", ErrInvalidNodeType, s)
	}
	version, err := strconv.Atoi(parts[2])
	if err != nil || version <= 0 {
		return NodeType{}, fmt.Errorf("%w: bad version: %q", ErrInvalidNodeType, s)
	}
	return NodeType{Namespace: parts[0], Name: parts[1], Version: version}, nil
}

// MustNodeType parses a node type and panics on error.
func MustNodeType(s string) NodeType {
	nt, err := ParseNodeType(s)
	if err != nil {
		panic(err)
	}
	return nt
}

// String returns the canonical form.
func (nt NodeType) String() string {
	return fmt.Sprintf("%s:%s:%d", nt.Namespace, nt.Name, nt.Version)
}

// Validate checks that the type round-trips through its canonical form.
// A type that fails here would be rejected by ParseNodeType on read-back.
func (nt NodeType) Validate() error {
	if nt.Namespace == "" || nt.Name == "" {
		return fmt.Errorf("%w: empty namespace or name: %q", ErrInvalidNodeType, nt.String())
	}
	if nt.Version <= 0 {
		return fmt.Errorf("%w: bad version: %q", ErrInvalidNodeType, nt.String())
	}
	return nil
}

// IsZero reports whether the node type is unset.
func (nt NodeType) IsZero() bool {
	return nt.Namespace == "" && nt.Name == "" && nt.Version == 0
}

// State marks the lifecycle state carried on every representation.
// Deletions are represented as tombstones so history survives.
type State int

const (
	// StateNormal is a live node.
	StateNormal State = iota
	// StateDeleted is a tombstone for a deleted node.
	StateDeleted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateDeleted:
		return "DELETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
