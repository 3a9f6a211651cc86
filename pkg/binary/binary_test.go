// ABOUTME: Tests for the deduplicating binary store
// ABOUTME: Covers dedup idempotence, temp naming and inconsistency detection

package binary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/calderhof/revstore/pkg/node"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create filesystem store: %v", err)
	}
	return map[string]Store{
		"filesystem": fsStore,
		"memory":     NewMemoryStore(),
	}
}

func TestStoreAndReadBack(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := NewDedup(store, nil, zerolog.Nop())
			content := []byte("hello binary world")

			fi, err := d.Store(context.Background(), bytes.NewReader(content), int64(len(content)))
			require.NoError(t, err)
			require.Equal(t, int64(len(content)), fi.Size)
			require.Regexp(t, `^[0-9a-f]{2}/[0-9a-f]{2}/[0-9a-f]{64}$`, fi.Path)

			rc, err := d.Open(fi.Path)
			require.NoError(t, err)
			defer rc.Close()
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.Equal(t, content, got)
		})
	}
}

// Two identical writes resolve to a single permanent blob; the second
// caller's temp blob is discarded, not duplicated.
func TestDedupIdempotence(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := NewDedup(store, nil, zerolog.Nop())
			content := []byte("identical payload")

			first, err := d.Store(context.Background(), bytes.NewReader(content), int64(len(content)))
			require.NoError(t, err)

			second, err := d.Store(context.Background(), bytes.NewReader(content), int64(len(content)))
			require.NoError(t, err)
			require.Equal(t, first.Path, second.Path)

			bucket, err := store.ListPermanentWithHashPrefix(first.Path[:2] + first.Path[3:5])
			require.NoError(t, err)
			require.Len(t, bucket, 1, "one permanent blob for one logical content")
		})
	}
}

func TestConcurrentSameContentWrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := NewDedup(store, nil, zerolog.Nop())
			content := []byte("raced payload")
			const writers = 4

			var wg sync.WaitGroup
			paths := make([]string, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					fi, err := d.Store(context.Background(), bytes.NewReader(content), int64(len(content)))
					if err != nil {
						t.Error(err)
						return
					}
					paths[i] = fi.Path
				}(i)
			}
			wg.Wait()

			for _, p := range paths {
				require.Equal(t, paths[0], p, "all writers must resolve to one blob")
			}
		})
	}
}

func TestTempNamesAreDistinct(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 32
			var mu sync.Mutex
			seen := map[string]bool{}

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					payload := fmt.Sprintf("payload-%d", i)
					fi, err := store.CreateTempFile(context.Background(), strings.NewReader(payload), int64(len(payload)))
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					defer mu.Unlock()
					if seen[fi.Path] {
						t.Errorf("temp name %s issued twice", fi.Path)
					}
					seen[fi.Path] = true
				}(i)
			}
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, seen, n)
		})
	}
}

func TestTempFileLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			payload := "temp lifecycle"
			fi, err := store.CreateTempFile(context.Background(), strings.NewReader(payload), int64(len(payload)))
			require.NoError(t, err)

			exists, err := store.TempFileExists(fi.Path)
			require.NoError(t, err)
			require.True(t, exists)

			rc, err := store.TempReader(fi.Path)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			_ = rc.Close()
			require.Equal(t, payload, string(got))

			require.NoError(t, store.DeleteTempFile(fi.Path))
			exists, err = store.TempFileExists(fi.Path)
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestLengthMismatchRejected(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.CreateTempFile(context.Background(), strings.NewReader("short"), 100)
			require.Error(t, err)
		})
	}
}

func TestSizeStrategyInconsistentBucket(t *testing.T) {
	strategy := SizeDeduplicationStrategy{}
	candidate := node.FileInfo{Path: "ab/cd/x", Size: 10}

	_, found, err := strategy.FindDuplicateBinary(candidate, nil)
	require.NoError(t, err)
	require.False(t, found)

	dup, found, err := strategy.FindDuplicateBinary(candidate, []node.FileInfo{
		{Path: "ab/cd/one", Size: 10},
		{Path: "ab/cd/other", Size: 99},
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ab/cd/one", dup.Path)

	_, _, err = strategy.FindDuplicateBinary(candidate, []node.FileInfo{
		{Path: "ab/cd/one", Size: 10},
		{Path: "ab/cd/two", Size: 10},
	})
	require.ErrorIs(t, err, ErrDedupInconsistency)
}
