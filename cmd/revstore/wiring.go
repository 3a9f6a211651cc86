// Backend construction shared by the CLI commands
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calderhof/revstore/internal/config"
	"github.com/calderhof/revstore/internal/logger"
	"github.com/calderhof/revstore/internal/metrics"
	"github.com/calderhof/revstore/pkg/binary"
	"github.com/calderhof/revstore/pkg/partition"
	"github.com/calderhof/revstore/pkg/repo"
	"github.com/calderhof/revstore/pkg/search"
	"github.com/calderhof/revstore/pkg/storage"
)

const gcInterval = 10 * time.Minute

// openRepository builds a repository from the configured backends.
// The returned closer releases everything the repository does not own
// itself, in reverse construction order.
func openRepository(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*repo.Repository, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	var parts partition.Set
	switch cfg.Store {
	case "badger":
		kv, err := storage.Open(storage.Config{
			Path:   filepath.Join(cfg.DataDir, "kv"),
			Logger: *log.GetZerolog(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open kv store: %w", err)
		}
		gcStop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(gcInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := kv.RunGC(); err != nil {
						log.Warn("Value log GC").Err(err).Send()
					}
				case <-gcStop:
					return
				}
			}
		}()
		closers = append(closers, func() error {
			close(gcStop)
			return kv.Close()
		})
		parts = partition.NewBadgerSet(kv)
	case "memory":
		parts = partition.NewMemorySet()
	}

	var index search.Index
	switch cfg.SearchBackend {
	case "sqlite":
		idx, err := search.NewSQLiteIndex(filepath.Join(cfg.DataDir, "search.db"))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open search index: %w", err)
		}
		index = idx
	case "memory":
		index = search.NewMemoryIndex()
	}

	var blobStore binary.Store
	switch cfg.BinaryBackend {
	case "filesystem":
		fs, err := binary.NewFilesystemStore(filepath.Join(cfg.DataDir, "blobs"))
		if err != nil {
			index.Close()
			closeAll()
			return nil, nil, fmt.Errorf("open blob store: %w", err)
		}
		blobStore = fs
	case "memory":
		blobStore = binary.NewMemoryStore()
	}

	r := repo.New(repo.Options{
		Partitions: parts,
		Index:      index,
		Binary:     binary.NewDedup(blobStore, nil, *log.GetZerolog()),
		Logger:     *log.GetZerolog(),
		Metrics:    m,
	})
	// Repository.Close owns the index; the kv closer runs after it.
	return r, closeAll, nil
}
