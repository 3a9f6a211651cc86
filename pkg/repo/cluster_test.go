package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calderhof/revstore/pkg/node"
)

func TestProcessLocalCoordinatorSessionInfo(t *testing.T) {
	c := NewProcessLocalCoordinator()
	ctx := context.Background()

	if _, ok, _ := c.SessionInfo(ctx, "s1"); ok {
		t.Fatal("expected no value for fresh key")
	}
	if err := c.PutSessionInfo(ctx, "s1", "5"); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := c.SessionInfo(ctx, "s1")
	if err != nil || !ok || v != "5" {
		t.Fatalf("get = %q, %v, %v", v, ok, err)
	}
	if err := c.RemoveSessionInfo(ctx, "s1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := c.SessionInfo(ctx, "s1"); ok {
		t.Fatal("value survived removal")
	}
}

func TestGlobalLockSerializes(t *testing.T) {
	c := NewProcessLocalCoordinator()
	ctx := context.Background()

	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.ExecuteWithGlobalLock(ctx, "lock", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("lock: %v", err)
			}
		}()
	}
	wg.Wait()

	if max > 1 {
		t.Fatalf("%d goroutines held the lock at once", max)
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	sess := openTestSession(t, r)
	if err := r.CreateNode(ctx, sess, node.MustPath("/doc1"), docContent(nil)); err != nil {
		t.Fatalf("create: %v", err)
	}
	rev, err := r.CommitSession(ctx, sess)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	current, err := r.CurrentRevision(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !current.Equal(rev) {
		t.Fatalf("bootstrap reset the revision to %s", current)
	}
}
