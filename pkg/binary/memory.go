// ABOUTME: In-memory object store backend
// ABOUTME: S3-style flat keys with atomic move by key swap

package binary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/calderhof/revstore/pkg/node"
)

// MemoryStore is an object-storage-shaped backend: flat keys, no
// directories, move implemented as an atomic key swap. Used in tests
// and as the stand-in for an S3-style deployment.
type MemoryStore struct {
	mu        sync.Mutex
	temp      map[string][]byte
	permanent map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		temp:      map[string][]byte{},
		permanent: map[string][]byte{},
	}
}

func (m *MemoryStore) CreateTempFile(ctx context.Context, r io.Reader, length int64) (node.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return node.FileInfo{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return node.FileInfo{}, err
	}
	if length >= 0 && int64(len(data)) != length {
		return node.FileInfo{}, fmt.Errorf("temp blob: read %d bytes, expected %d", len(data), length)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var name string
	for {
		name = ulid.Make().String()
		if _, taken := m.temp[name]; !taken {
			break
		}
	}
	m.temp[name] = data
	return node.FileInfo{Path: name, Size: int64(len(data))}, nil
}

func (m *MemoryStore) TempReader(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.temp[path]
	if !ok {
		return nil, fmt.Errorf("temp blob not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) PermanentReader(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.permanent[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) TempFileExists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.temp[path]
	return ok, nil
}

func (m *MemoryStore) DeleteTempFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.temp, path)
	return nil
}

func (m *MemoryStore) MoveTempToPermanent(tempPath, targetPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.temp[tempPath]
	if !ok {
		return fmt.Errorf("temp blob not found: %s", tempPath)
	}
	m.permanent[targetPath] = data
	delete(m.temp, tempPath)
	return nil
}

func (m *MemoryStore) ListPermanentWithHashPrefix(prefix string) ([]node.FileInfo, error) {
	if len(prefix) < 4 {
		return nil, fmt.Errorf("hash prefix too short: %q", prefix)
	}
	bucket := prefix[:2] + "/" + prefix[2:4] + "/"

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []node.FileInfo
	for key, data := range m.permanent {
		if strings.HasPrefix(key, bucket) {
			out = append(out, node.FileInfo{Path: key, Size: int64(len(data))})
		}
	}
	return out, nil
}
