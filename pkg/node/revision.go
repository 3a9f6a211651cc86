// ABOUTME: Repository revision numbers
// ABOUTME: Arbitrary-precision, hex-serialized, totally ordered

package node

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidRevision is returned for malformed revision strings.
var ErrInvalidRevision = errors.New("invalid revision")

// RevisionNumber is a non-negative, arbitrary-precision revision
// counter. The zero value is revision 0 ("unset/initial"). Values are
// immutable; arithmetic returns new values.
type RevisionNumber struct {
	n *big.Int
}

// RevisionZero is the initial repository revision.
var RevisionZero = RevisionNumber{}

// NewRevision builds a revision from a small non-negative integer.
func NewRevision(v uint64) RevisionNumber {
	if v == 0 {
		return RevisionZero
	}
	return RevisionNumber{n: new(big.Int).SetUint64(v)}
}

// ParseRevision parses the hexadecimal serialized form.
func ParseRevision(s string) (RevisionNumber, error) {
	if s == "" {
		return RevisionNumber{}, fmt.Errorf("%w: empty", ErrInvalidRevision)
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return RevisionNumber{}, fmt.Errorf("%w: %q", ErrInvalidRevision, s)
	}
	if n.Sign() < 0 {
		return RevisionNumber{}, fmt.Errorf("%w: negative: %q", ErrInvalidRevision, s)
	}
	return RevisionNumber{n: n}, nil
}

func (r RevisionNumber) val() *big.Int {
	if r.n == nil {
		return big.NewInt(0)
	}
	return r.n
}

// String returns the hexadecimal serialized form.
func (r RevisionNumber) String() string {
	return r.val().Text(16)
}

// IsZero reports whether the revision is the initial revision 0.
func (r RevisionNumber) IsZero() bool {
	return r.n == nil || r.n.Sign() == 0
}

// Cmp returns -1, 0 or 1 comparing r to other.
func (r RevisionNumber) Cmp(other RevisionNumber) int {
	return r.val().Cmp(other.val())
}

// Less reports whether r orders strictly before other.
func (r RevisionNumber) Less(other RevisionNumber) bool {
	return r.Cmp(other) < 0
}

// Equal reports numeric equality.
func (r RevisionNumber) Equal(other RevisionNumber) bool {
	return r.Cmp(other) == 0
}

// Add returns r incremented by delta.
func (r RevisionNumber) Add(delta uint64) RevisionNumber {
	sum := new(big.Int).Add(r.val(), new(big.Int).SetUint64(delta))
	return RevisionNumber{n: sum}
}

// Sub returns r decremented by delta; going below zero is an error.
func (r RevisionNumber) Sub(delta uint64) (RevisionNumber, error) {
	diff := new(big.Int).Sub(r.val(), new(big.Int).SetUint64(delta))
	if diff.Sign() < 0 {
		return RevisionNumber{}, fmt.Errorf("%w: below zero", ErrInvalidRevision)
	}
	return RevisionNumber{n: diff}, nil
}

// Next returns the revision immediately after r.
func (r RevisionNumber) Next() RevisionNumber {
	return r.Add(1)
}
