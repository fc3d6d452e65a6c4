// Package blobstore holds uploaded audio bytes on the local filesystem,
// addressed by opaque references relative to the media root. References never
// escape the root; path traversal in a ref is rejected.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store reads and writes audio blobs under a single root directory.
type Store struct {
	root string
}

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Ref     string
	Size    int64
	ModTime time.Time
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, errors.New("blobstore root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blobstore root: %w", err)
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blobstore root: %w", err)
	}
	return &Store{root: absolute}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) resolve(ref string) (string, error) {
	cleaned := filepath.Clean(strings.TrimSpace(ref))
	if cleaned == "" || cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid blob ref %q", ref)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Put streams data into the blob identified by ref, overwriting any previous
// content. Intermediate directories are created as needed.
func (s *Store) Put(ref string, data io.Reader) (int64, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create blob directory: %w", err)
	}

	tmp := path + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	written, err := io.Copy(out, data)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("publish blob: %w", err)
	}
	return written, nil
}

// Open returns a reader over the blob's bytes. The caller closes it.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Exists reports whether the blob is present.
func (s *Store) Exists(ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return !info.IsDir(), nil
}

// Delete removes the blob. Deleting an absent blob is not an error.
func (s *Store) Delete(ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// ListOlderThan walks the store and returns blobs last modified before the
// cutoff. Partially written files are skipped.
func (s *Store) ListOlderThan(cutoff time.Time) ([]BlobInfo, error) {
	var blobs []BlobInfo
	err := filepath.WalkDir(s.root, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".partial") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		ref, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		blobs = append(blobs, BlobInfo{
			Ref:     filepath.ToSlash(ref),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk blobstore: %w", err)
	}
	return blobs, nil
}
