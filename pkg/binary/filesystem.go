// ABOUTME: Local-filesystem block store backend
// ABOUTME: Temp blobs under tmp/, permanent blobs under hash-nested dirs

package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/calderhof/revstore/pkg/node"
)

// FilesystemStore keeps blobs under a root directory: temporary blobs
// in tmp/<name>, permanent blobs in blobs/ab/cd/<hash>.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates the directory layout under root.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	for _, dir := range []string{filepath.Join(root, "tmp"), filepath.Join(root, "blobs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &FilesystemStore{root: root}, nil
}

func (fs *FilesystemStore) tempAbs(name string) string {
	return filepath.Join(fs.root, "tmp", name)
}

func (fs *FilesystemStore) permanentAbs(path string) string {
	return filepath.Join(fs.root, "blobs", filepath.FromSlash(path))
}

func (fs *FilesystemStore) CreateTempFile(ctx context.Context, r io.Reader, length int64) (node.FileInfo, error) {
	var fh *os.File
	var name string
	// Regenerate on collision; O_EXCL gives the existence-check-then-
	// create atomicity, no lock needed.
	for {
		if err := ctx.Err(); err != nil {
			return node.FileInfo{}, err
		}
		name = ulid.Make().String()
		f, err := os.OpenFile(fs.tempAbs(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			fh = f
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return node.FileInfo{}, fmt.Errorf("creating temp blob: %w", err)
		}
	}

	written, err := io.Copy(fh, r)
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(fs.tempAbs(name))
		return node.FileInfo{}, fmt.Errorf("writing temp blob %s: %w", name, err)
	}
	if length >= 0 && written != length {
		_ = os.Remove(fs.tempAbs(name))
		return node.FileInfo{}, fmt.Errorf("temp blob %s: wrote %d bytes, expected %d", name, written, length)
	}
	return node.FileInfo{Path: name, Size: written}, nil
}

func (fs *FilesystemStore) TempReader(path string) (io.ReadCloser, error) {
	return os.Open(fs.tempAbs(path))
}

func (fs *FilesystemStore) PermanentReader(path string) (io.ReadCloser, error) {
	return os.Open(fs.permanentAbs(path))
}

func (fs *FilesystemStore) TempFileExists(path string) (bool, error) {
	_, err := os.Stat(fs.tempAbs(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (fs *FilesystemStore) DeleteTempFile(path string) error {
	err := os.Remove(fs.tempAbs(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (fs *FilesystemStore) MoveTempToPermanent(tempPath, targetPath string) error {
	src := fs.tempAbs(tempPath)
	dst := fs.permanentAbs(targetPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating blob dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename can fail across filesystem boundaries; fall back to
	// copy-then-delete.
	return fs.copyThenDelete(src, dst)
}

func (fs *FilesystemStore) copyThenDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (fs *FilesystemStore) ListPermanentWithHashPrefix(prefix string) ([]node.FileInfo, error) {
	if len(prefix) < 4 {
		return nil, fmt.Errorf("hash prefix too short: %q", prefix)
	}
	dir := filepath.Join(fs.root, "blobs", prefix[:2], prefix[2:4])
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []node.FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, node.FileInfo{
			Path: fmt.Sprintf("%s/%s/%s", prefix[:2], prefix[2:4], entry.Name()),
			Size: info.Size(),
		})
	}
	return out, nil
}
