// ABOUTME: Badger-backed key-value store shared by partition backends
// ABOUTME: Thin wrapper exposing gets, upserts, prefix scans and transactions

package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Config configures the KV store.
type Config struct {
	// Path is the badger data directory; ignored when InMemory is set.
	Path string

	// InMemory runs badger without disk persistence (tests, embedding).
	InMemory bool

	// ValueLogFileSize caps each value log file; 0 uses 100MB.
	ValueLogFileSize int64

	Logger zerolog.Logger
}

// KV is a thin wrapper over a badger database. All partition backends
// share one KV and isolate themselves through key prefixes.
type KV struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens or creates the store.
func Open(cfg Config) (*KV, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	} else {
		opts.ValueLogFileSize = 1024 * 1024 * 100
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}
	return &KV{db: db, log: cfg.Logger}, nil
}

// Close closes the underlying database.
func (kv *KV) Close() error {
	return kv.db.Close()
}

// Set upserts a single key.
func (kv *KV) Set(key, value []byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Get returns the value for key; the second return is false when the
// key does not exist.
func (kv *KV) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes a key; deleting a missing key is not an error.
func (kv *KV) Delete(key []byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// SetBatch upserts several key/value pairs in one transaction.
func (kv *KV) SetBatch(pairs [][2][]byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		for _, kvp := range pairs {
			if err := txn.Set(kvp[0], kvp[1]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanPrefix visits every key with the given prefix in lexicographic
// order. The callback returns false to stop the scan early.
func (kv *KV) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	return kv.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(k, v) {
				return nil
			}
		}
		return nil
	})
}

// DeletePrefix removes every key with the given prefix.
func (kv *KV) DeletePrefix(prefix []byte) error {
	var keys [][]byte
	err := kv.ScanPrefix(prefix, func(key, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	return kv.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update runs fn inside a read-write badger transaction. Badger's
// optimistic concurrency surfaces conflicting commits as ErrConflict;
// callers needing compare-and-set semantics retry on it.
func (kv *KV) Update(fn func(txn *badger.Txn) error) error {
	return kv.db.Update(fn)
}

// IsConflict reports whether err is a badger transaction conflict.
func IsConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

// RunGC triggers one value-log garbage collection pass. ErrNoRewrite
// (nothing to collect) is not an error for callers.
func (kv *KV) RunGC() error {
	err := kv.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
