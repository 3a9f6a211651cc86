// ABOUTME: Revision-consistent full-text index contract
// ABOUTME: One entry per (path, revision); old_all shadow field blocks stale matches

package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/calderhof/revstore/pkg/node"
)

// Query asks which node paths match text as visible at a session's
// revision. SessionID scopes working-area shadow entries; Start and
// Count page the path stream.
type Query struct {
	SessionID string
	Revision  node.RevisionNumber
	Text      string
	Start     int
	Count     int
}

// Index is the search adapter contract. Committed entries carry a
// revision and participate in the blocking algorithm; working-area
// entries are a session-scoped shadow with no revision.
type Index interface {
	AddEntry(ctx context.Context, entry node.SearchEntry) error
	AddEntries(ctx context.Context, entries []node.SearchEntry) error

	// RemoveEntry drops the committed entry at (path, revision).
	// Removal only targets entries above the catalog head, written by
	// a commit attempt that lost the catalog compare-and-set.
	RemoveEntry(ctx context.Context, path node.Path, revision node.RevisionNumber) error

	AddWorkingAreaEntry(ctx context.Context, sessionID string, entry node.SearchEntry) error
	RemoveWorkingAreaEntries(ctx context.Context, sessionID string) error

	// Search runs the revision-consistent query: among entries with
	// revision <= q.Revision matching on all or old_all, the highest
	// revision per path wins its group, and the path is returned only
	// if that winning entry matches on all (current values) and is not
	// a tombstone.
	Search(ctx context.Context, q Query) ([]node.Path, error)

	Close() error
}

// currentText flattens the current property values into the all field.
func currentText(entry node.SearchEntry) string {
	return propsText(entry.CurrentProperties)
}

// priorText flattens the superseded values (changed-from and removed)
// into the old_all field, keyed in the document by old_<name>.
func priorText(entry node.SearchEntry) string {
	return propsText(entry.PriorProperties)
}

func propsText(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		text := valueText(props[name])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

func valueText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case *node.TypedList:
		parts := make([]string, 0, val.Len())
		for _, el := range val.Elements() {
			parts = append(parts, valueText(el))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// matchText reports whether every query token appears as a whole token
// in text, case-insensitively. This is the memory backend's matcher
// and the semantic reference for the FTS5 one.
func matchText(text, query string) bool {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return false
	}
	textTokens := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		textTokens[tok] = true
	}
	for _, tok := range queryTokens {
		if !textTokens[tok] {
			return false
		}
	}
	return true
}

// revisionKey orders revisions lexicographically: two hex digits of
// hex-length followed by the hex form.
func revisionKey(rev node.RevisionNumber) string {
	hex := rev.String()
	return fmt.Sprintf("%02x%s", len(hex), hex)
}

// page applies start/count to a sorted path slice.
func page(paths []node.Path, start, count int) []node.Path {
	if start < 0 {
		start = 0
	}
	if start >= len(paths) {
		return nil
	}
	paths = paths[start:]
	if count > 0 && count < len(paths) {
		paths = paths[:count]
	}
	return paths
}
