// ABOUTME: Content-addressed binary store with move-time deduplication
// ABOUTME: Pluggable duplicate detection over hash-prefixed permanent blobs

package binary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/calderhof/revstore/pkg/node"
)

// ErrDedupInconsistency signals more than one equal-size candidate
// under one hash prefix: the permanent store is corrupted, since the
// prefix bucket is expected to disambiguate by content hash.
var ErrDedupInconsistency = errors.New("binary store inconsistency: multiple duplicate candidates")

// Store is the physical binary storage adapter. Two backends exist:
// a local-filesystem block store and an in-memory object store; both
// honor the same move/uniqueness/listing semantics.
type Store interface {
	// CreateTempFile streams length bytes into a new temporary blob
	// under a store-unique random name. Name collisions regenerate
	// until an unused name is found.
	CreateTempFile(ctx context.Context, r io.Reader, length int64) (node.FileInfo, error)

	TempReader(path string) (io.ReadCloser, error)
	PermanentReader(path string) (io.ReadCloser, error)

	TempFileExists(path string) (bool, error)
	DeleteTempFile(path string) error

	// MoveTempToPermanent atomically relocates a temporary blob to its
	// permanent path (rename where the backend supports it, with a
	// copy-then-delete fallback).
	MoveTempToPermanent(tempPath, targetPath string) error

	// ListPermanentWithHashPrefix returns the permanent blobs stored
	// under the given hash prefix bucket.
	ListPermanentWithHashPrefix(prefix string) ([]node.FileInfo, error)
}

// DeduplicationStrategy decides whether a freshly written candidate
// duplicates an existing permanent blob.
type DeduplicationStrategy interface {
	// FindDuplicateBinary returns the duplicate among existing, if
	// any. Detecting an inconsistent bucket is an error.
	FindDuplicateBinary(candidate node.FileInfo, existing []node.FileInfo) (node.FileInfo, bool, error)
}

// SizeDeduplicationStrategy is the default strategy: a duplicate
// exists iff exactly one candidate in the bucket has an equal size.
// More than one equal-size candidate is a fatal inconsistency.
type SizeDeduplicationStrategy struct{}

func (SizeDeduplicationStrategy) FindDuplicateBinary(candidate node.FileInfo, existing []node.FileInfo) (node.FileInfo, bool, error) {
	var matches []node.FileInfo
	for _, fi := range existing {
		if fi.Size == candidate.Size {
			matches = append(matches, fi)
		}
	}
	switch len(matches) {
	case 0:
		return node.FileInfo{}, false, nil
	case 1:
		return matches[0], true, nil
	default:
		return node.FileInfo{}, false, fmt.Errorf("%w: %d equal-size blobs for candidate %s", ErrDedupInconsistency, len(matches), candidate.Path)
	}
}

// Dedup orchestrates temp writes, hashing and move-time duplicate
// resolution. Concurrent writes of the same content are not
// serialized; both write temp blobs and the dedup check at move time
// resolves the race.
type Dedup struct {
	store    Store
	strategy DeduplicationStrategy
	log      zerolog.Logger
}

// NewDedup builds the orchestrator; a nil strategy selects the
// default size-based one.
func NewDedup(store Store, strategy DeduplicationStrategy, log zerolog.Logger) *Dedup {
	if strategy == nil {
		strategy = SizeDeduplicationStrategy{}
	}
	return &Dedup{store: store, strategy: strategy, log: log}
}

// hashDepth components of the permanent layout: ab/cd/<fullhash>.
func permanentPath(hash string) string {
	return fmt.Sprintf("%s/%s/%s", hash[:2], hash[2:4], hash)
}

func hashPrefix(hash string) string {
	return hash[:4]
}

// Store writes the stream and returns the permanent blob handle,
// deduplicating against existing content.
func (d *Dedup) Store(ctx context.Context, r io.Reader, length int64) (node.FileInfo, error) {
	hasher := sha256.New()
	tmp, err := d.store.CreateTempFile(ctx, io.TeeReader(r, hasher), length)
	if err != nil {
		return node.FileInfo{}, fmt.Errorf("writing temp blob: %w", err)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))
	target := permanentPath(hash)

	existing, err := d.store.ListPermanentWithHashPrefix(hashPrefix(hash))
	if err != nil {
		return node.FileInfo{}, fmt.Errorf("listing prefix bucket %s: %w", hashPrefix(hash), err)
	}

	duplicate, found, err := d.strategy.FindDuplicateBinary(node.FileInfo{Path: target, Size: tmp.Size}, existing)
	if err != nil {
		return node.FileInfo{}, err
	}
	if found {
		if delErr := d.store.DeleteTempFile(tmp.Path); delErr != nil {
			d.log.Warn().Str("temp", tmp.Path).Err(delErr).Msg("failed to discard duplicate temp blob")
		}
		d.log.Debug().Str("blob", duplicate.Path).Int64("size", duplicate.Size).Msg("binary deduplicated")
		return duplicate, nil
	}

	if err := d.store.MoveTempToPermanent(tmp.Path, target); err != nil {
		return node.FileInfo{}, fmt.Errorf("moving blob to %s: %w", target, err)
	}
	d.log.Debug().Str("blob", target).Int64("size", tmp.Size).Msg("binary stored")
	return node.FileInfo{Path: target, Size: tmp.Size}, nil
}

// Open returns a reader over a permanent blob.
func (d *Dedup) Open(path string) (io.ReadCloser, error) {
	return d.store.PermanentReader(path)
}
