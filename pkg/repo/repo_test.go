// ABOUTME: Tests for session reads, staged writes and references
// ABOUTME: Runs against in-memory partitions and index

package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/calderhof/revstore/pkg/node"
	"github.com/calderhof/revstore/pkg/partition"
	"github.com/calderhof/revstore/pkg/search"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	r := New(Options{
		Partitions: partition.NewMemorySet(),
		Index:      search.NewMemoryIndex(),
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return r
}

func openTestSession(t *testing.T, r *Repository) *Session {
	t.Helper()
	sess, err := r.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return sess
}

func docContent(props map[string]any) node.NodeContentRepresentation {
	return node.NodeContentRepresentation{
		NodeType:   node.NodeType{Namespace: "test", Name: "document", Version: 1},
		State:      node.StateNormal,
		Properties: props,
	}
}

func TestOpenSessionBindsCurrentRevision(t *testing.T) {
	r := setupTestRepo(t)
	sess := openTestSession(t, r)

	if !sess.Revision.Equal(node.RevisionZero) {
		t.Fatalf("new session revision = %s, want 0", sess.Revision)
	}
	if sess.ID == "" {
		t.Fatal("session id must not be empty")
	}

	other := openTestSession(t, r)
	if other.ID == sess.ID {
		t.Fatal("session ids must be unique")
	}
}

func TestGetNodeMissing(t *testing.T) {
	r := setupTestRepo(t)
	sess := openTestSession(t, r)

	got, err := r.GetNode(context.Background(), sess, node.MustPath("/nope"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing node, got %+v", got)
	}
}

func TestCreateNodeStagedVisibility(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(map[string]any{"title": "alpha"})); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := r.GetNode(ctx, sess, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("staged node must be visible to its own session")
	}
	if got.Content.Properties["title"] != "alpha" {
		t.Fatalf("title = %v, want alpha", got.Content.Properties["title"])
	}

	// Another session must not see the uncommitted node.
	other := openTestSession(t, r)
	fromOther, err := r.GetNode(ctx, other, p)
	if err != nil {
		t.Fatalf("get from other session: %v", err)
	}
	if fromOther != nil {
		t.Fatal("staged node leaked into another session")
	}
}

func TestCreateNodeExisting(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(nil)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := r.CreateNode(ctx, sess, p, docContent(nil))
	if !errors.Is(err, ErrNodeExists) {
		t.Fatalf("second create error = %v, want ErrNodeExists", err)
	}
}

// A zero or malformed node type would be rejected by ParseNodeType
// when the committed record is read back, so it must never be staged.
func TestWriteRejectsInvalidNodeType(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	bad := node.NodeContentRepresentation{
		State:      node.StateNormal,
		Properties: map[string]any{"title": "alpha"},
	}
	if err := r.CreateNode(ctx, sess, p, bad); !errors.Is(err, node.ErrInvalidNodeType) {
		t.Fatalf("create with zero node type gave %v, want ErrInvalidNodeType", err)
	}

	if err := r.CreateNode(ctx, sess, p, docContent(nil)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpdateNode(ctx, sess, p, bad); !errors.Is(err, node.ErrInvalidNodeType) {
		t.Fatalf("update with zero node type gave %v, want ErrInvalidNodeType", err)
	}

	bad.NodeType = node.NodeType{Namespace: "test", Name: "document"}
	if err := r.UpdateNode(ctx, sess, p, bad); !errors.Is(err, node.ErrInvalidNodeType) {
		t.Fatalf("update with zero version gave %v, want ErrInvalidNodeType", err)
	}
}

func TestUpdateNodeMissing(t *testing.T) {
	r := setupTestRepo(t)
	sess := openTestSession(t, r)

	err := r.UpdateNode(context.Background(), sess, node.MustPath("/nope"), docContent(nil))
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("update error = %v, want ErrNodeNotFound", err)
	}
}

func TestUpdateRemovesAbsentProperties(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(map[string]any{"title": "alpha", "author": "b"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CommitSession(ctx, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := r.UpdateNode(ctx, sess, p, docContent(map[string]any{"title": "beta"})); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := r.GetNode(ctx, sess, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := got.Content.Properties["author"]; ok {
		t.Fatal("property dropped by update still visible")
	}
	if got.Content.Properties["title"] != "beta" {
		t.Fatalf("title = %v, want beta", got.Content.Properties["title"])
	}
}

func TestDeleteNodeHidesFromSession(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(map[string]any{"title": "alpha"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CommitSession(ctx, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := r.DeleteNode(ctx, sess, p); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := r.GetNode(ctx, sess, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("staged tombstone must hide the node")
	}

	// The committed node is still visible elsewhere until commit.
	other := openTestSession(t, r)
	fromOther, err := r.GetNode(ctx, other, p)
	if err != nil {
		t.Fatalf("get from other session: %v", err)
	}
	if fromOther == nil {
		t.Fatal("uncommitted delete leaked into another session")
	}
}

func TestDeleteBlockedByReference(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	target := node.MustPath("/target")
	referrer := node.MustPath("/referrer")

	if err := r.CreateNode(ctx, sess, target, docContent(nil)); err != nil {
		t.Fatalf("create target: %v", err)
	}
	if err := r.CreateNode(ctx, sess, referrer, docContent(nil)); err != nil {
		t.Fatalf("create referrer: %v", err)
	}
	if err := r.AddReference(ctx, sess, target, referrer); err != nil {
		t.Fatalf("add reference: %v", err)
	}

	err := r.DeleteNode(ctx, sess, target)
	var rie *ReferentialIntegrityError
	if !errors.As(err, &rie) {
		t.Fatalf("delete error = %v, want ReferentialIntegrityError", err)
	}
	if len(rie.Referrers) != 1 || rie.Referrers[0] != referrer {
		t.Fatalf("referrers = %v, want [%s]", rie.Referrers, referrer)
	}

	if err := r.RemoveReference(ctx, sess, target, referrer); err != nil {
		t.Fatalf("remove reference: %v", err)
	}
	if err := r.DeleteNode(ctx, sess, target); err != nil {
		t.Fatalf("delete after reference removal: %v", err)
	}
}

func TestGetChildrenMergesStagedEdits(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)

	for _, name := range []string{"/docs/a", "/docs/b"} {
		if err := r.CreateNode(ctx, sess, node.MustPath(name), docContent(nil)); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := r.CommitSession(ctx, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := r.CreateNode(ctx, sess, node.MustPath("/docs/c"), docContent(nil)); err != nil {
		t.Fatalf("create c: %v", err)
	}
	if err := r.DeleteNode(ctx, sess, node.MustPath("/docs/a")); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	children, err := r.GetChildren(ctx, sess, node.MustPath("/docs"))
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	var got []string
	for _, c := range children {
		got = append(got, c.Path.String())
	}
	want := []string{"/docs/b", "/docs/c"}
	if len(got) != len(want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
}

func TestDiscardSessionDropsStagedState(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(map[string]any{"title": "alpha"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.DiscardSession(ctx, sess); err != nil {
		t.Fatalf("discard: %v", err)
	}

	got, err := r.GetNode(ctx, sess, p)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("discarded staged node still visible")
	}

	rev, err := r.CommitSession(ctx, sess)
	if err != nil {
		t.Fatalf("commit after discard: %v", err)
	}
	if !rev.Equal(node.RevisionZero) {
		t.Fatalf("empty commit advanced the revision to %s", rev)
	}
}

func TestStagedSearchVisibility(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)

	if err := r.CreateNode(ctx, sess, node.MustPath("/doc1"), docContent(map[string]any{"title": "alpha"})); err != nil {
		t.Fatalf("create: %v", err)
	}

	paths, err := r.Search(ctx, sess, "alpha", 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(paths) != 1 || paths[0] != node.MustPath("/doc1") {
		t.Fatalf("search = %v, want [/doc1]", paths)
	}

	other := openTestSession(t, r)
	paths, err = r.Search(ctx, other, "alpha", 0, 10)
	if err != nil {
		t.Fatalf("search from other session: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("staged entry leaked into another session's search: %v", paths)
	}
}

func TestStagedUpdateChangesOwnSearchView(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)
	p := node.MustPath("/doc1")

	if err := r.CreateNode(ctx, sess, p, docContent(map[string]any{"title": "alpha"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CommitSession(ctx, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := r.UpdateNode(ctx, sess, p, docContent(map[string]any{"title": "beta"})); err != nil {
		t.Fatalf("update: %v", err)
	}

	paths, err := r.Search(ctx, sess, "alpha", 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("staged update left the old value searchable: %v", paths)
	}
	paths, err = r.Search(ctx, sess, "beta", 0, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("staged value not searchable in own session: %v", paths)
	}
}

func TestStatsReflectsCommits(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	sess := openTestSession(t, r)

	if err := r.CreateNode(ctx, sess, node.MustPath("/doc1"), docContent(nil)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.CommitSession(ctx, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NodeCount != 1 {
		t.Fatalf("node count = %d, want 1", stats.NodeCount)
	}
	if !stats.Revision.Equal(node.NewRevision(1)) {
		t.Fatalf("revision = %s, want 1", stats.Revision)
	}
}
