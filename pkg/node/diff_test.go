// ABOUTME: Tests for property diff computation
// ABOUTME: Verifies the added/changed/removed partition property

package node

import (
	"testing"
	"time"
)

func contentWith(props map[string]any) NodeContentRepresentation {
	return NodeContentRepresentation{
		NodeType:   MustNodeType("app:article:1"),
		State:      StateNormal,
		Properties: props,
	}
}

func TestComputeDiffNewNode(t *testing.T) {
	content := contentWith(map[string]any{"title": "alpha", "views": int64(3)})
	entry := ComputeDiff("s1", MustPath("/doc1"), NewRevision(1), nil, content)

	if entry.PriorContent != nil {
		t.Error("new node should have no prior content")
	}
	if len(entry.AddedProperties) != 2 {
		t.Errorf("added = %v", entry.AddedProperties)
	}
	if len(entry.ChangedProperties) != 0 || len(entry.RemovedProperties) != 0 {
		t.Errorf("changed/removed should be empty: %v %v", entry.ChangedProperties, entry.RemovedProperties)
	}
}

func TestComputeDiffChangeAndRemove(t *testing.T) {
	prior := contentWith(map[string]any{"title": "alpha", "author": "arn", "stale": true})
	next := contentWith(map[string]any{"title": "beta", "author": "arn", "fresh": 1})

	entry := ComputeDiff("s1", MustPath("/doc1"), NewRevision(2), &prior, next)

	if _, ok := entry.AddedProperties["fresh"]; !ok || len(entry.AddedProperties) != 1 {
		t.Errorf("added = %v", entry.AddedProperties)
	}
	ch, ok := entry.ChangedProperties["title"]
	if !ok || len(entry.ChangedProperties) != 1 {
		t.Fatalf("changed = %v", entry.ChangedProperties)
	}
	if ch.Old != "alpha" || ch.New != "beta" {
		t.Errorf("change pair = %+v", ch)
	}
	if old, ok := entry.RemovedProperties["stale"]; !ok || old != true || len(entry.RemovedProperties) != 1 {
		t.Errorf("removed = %v", entry.RemovedProperties)
	}
}

// The three diff sets must be pairwise disjoint and their union must
// equal the symmetric difference of the two property maps.
func TestComputeDiffPartitionsSymmetricDifference(t *testing.T) {
	prior := contentWith(map[string]any{"a": 1, "b": "x", "c": true, "d": int64(7)})
	next := contentWith(map[string]any{"b": "y", "c": true, "d": int64(7), "e": "new"})

	entry := ComputeDiff("s1", MustPath("/n"), NewRevision(5), &prior, next)

	seen := map[string]int{}
	for k := range entry.AddedProperties {
		seen[k]++
	}
	for k := range entry.ChangedProperties {
		seen[k]++
	}
	for k := range entry.RemovedProperties {
		seen[k]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Errorf("property %q appears in %d diff sets", k, n)
		}
	}

	want := map[string]bool{"a": true, "b": true, "e": true}
	if len(seen) != len(want) {
		t.Fatalf("diffed properties = %v, want keys %v", seen, want)
	}
	for k := range want {
		if _, ok := seen[k]; !ok {
			t.Errorf("property %q missing from diff", k)
		}
	}

	// Unchanged properties never appear.
	if _, ok := seen["c"]; ok {
		t.Error("unchanged property c diffed")
	}
}

func TestComputeDiffValueSemantics(t *testing.T) {
	instant := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sameInstant := instant.In(time.FixedZone("X", 3600))

	prior := contentWith(map[string]any{"at": instant})
	next := contentWith(map[string]any{"at": sameInstant})

	entry := ComputeDiff("s1", MustPath("/n"), NewRevision(2), &prior, next)
	if len(entry.ChangedProperties) != 0 {
		t.Errorf("same instant in different zone should not diff: %v", entry.ChangedProperties)
	}

	l1 := NewTypedList("tags", ListString)
	_ = l1.Append("a")
	l2 := NewTypedList("tags", ListString)
	_ = l2.Append("b")

	prior = contentWith(map[string]any{"tags": l1})
	next = contentWith(map[string]any{"tags": l2})
	entry = ComputeDiff("s1", MustPath("/n"), NewRevision(2), &prior, next)
	if len(entry.ChangedProperties) != 1 {
		t.Errorf("typed list change not detected: %v", entry.ChangedProperties)
	}
}

func TestJournalEntryPriorProperties(t *testing.T) {
	prior := contentWith(map[string]any{"title": "alpha", "gone": "old"})
	next := contentWith(map[string]any{"title": "beta", "added": "new"})

	entry := ComputeDiff("s1", MustPath("/doc1"), NewRevision(2), &prior, next)
	priorProps := entry.PriorProperties()

	if priorProps["title"] != "alpha" {
		t.Errorf("prior title = %v", priorProps["title"])
	}
	if priorProps["gone"] != "old" {
		t.Errorf("prior gone = %v", priorProps["gone"])
	}
	if _, ok := priorProps["added"]; ok {
		t.Error("added property has no prior value")
	}
}
