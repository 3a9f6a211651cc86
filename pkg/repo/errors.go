// ABOUTME: Repository error taxonomy
// ABOUTME: Referential-integrity and node lifecycle errors

package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calderhof/revstore/pkg/node"
)

// ErrNodeExists is returned when creating a path that already has a
// live node visible to the session.
var ErrNodeExists = errors.New("node already exists")

// ErrNodeNotFound is returned when updating or deleting a path with
// no live node visible to the session.
var ErrNodeNotFound = errors.New("node not found")

// ErrCommitContention is returned when a commit exhausts its catalog
// compare-and-set retries.
var ErrCommitContention = errors.New("commit abandoned after repeated catalog conflicts")

// ReferentialIntegrityError blocks deletion of a node that still has
// incoming references staged in the session.
type ReferentialIntegrityError struct {
	Path      node.Path
	Referrers []node.Path
}

func (e *ReferentialIntegrityError) Error() string {
	names := make([]string, 0, len(e.Referrers))
	for _, p := range e.Referrers {
		names = append(names, p.String())
	}
	return fmt.Sprintf("node %s still referenced by %s", e.Path, strings.Join(names, ", "))
}
