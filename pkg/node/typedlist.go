// ABOUTME: Named, homogeneously-typed multi-valued properties
// ABOUTME: List element type is explicit, never inferred

package node

import (
	"fmt"
	"time"
)

// ListType is the declared element type of a TypedList.
type ListType int

const (
	ListString ListType = iota
	ListInteger
	ListLong
	ListBoolean
	ListDate
)

// String returns the list type name.
func (lt ListType) String() string {
	switch lt {
	case ListString:
		return "string"
	case ListInteger:
		return "integer"
	case ListLong:
		return "long"
	case ListBoolean:
		return "boolean"
	case ListDate:
		return "date"
	default:
		return fmt.Sprintf("ListType(%d)", int(lt))
	}
}

// TypedList is a named, ordered sequence of values sharing one declared
// element type. Appending a mismatched value is rejected.
type TypedList struct {
	Name     string
	Type     ListType
	elements []any
}

// NewTypedList creates an empty list with an explicit element type.
func NewTypedList(name string, lt ListType) *TypedList {
	return &TypedList{Name: name, Type: lt}
}

// Append adds a value, enforcing the declared element type.
func (l *TypedList) Append(v any) error {
	if !l.accepts(v) {
		return fmt.Errorf("typed list %q: value %T does not match element type %s", l.Name, v, l.Type)
	}
	l.elements = append(l.elements, v)
	return nil
}

func (l *TypedList) accepts(v any) bool {
	switch l.Type {
	case ListString:
		_, ok := v.(string)
		return ok
	case ListInteger:
		_, ok := v.(int)
		return ok
	case ListLong:
		_, ok := v.(int64)
		return ok
	case ListBoolean:
		_, ok := v.(bool)
		return ok
	case ListDate:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// Len returns the number of elements.
func (l *TypedList) Len() int { return len(l.elements) }

// Elements returns a copy of the element slice.
func (l *TypedList) Elements() []any {
	out := make([]any, len(l.elements))
	copy(out, l.elements)
	return out
}

// Equal reports whether two lists have the same name, type and elements.
func (l *TypedList) Equal(other *TypedList) bool {
	if l == nil || other == nil {
		return l == other
	}
	if l.Name != other.Name || l.Type != other.Type || len(l.elements) != len(other.elements) {
		return false
	}
	for i, v := range l.elements {
		if !valueEqual(v, other.elements[i]) {
			return false
		}
	}
	return true
}
