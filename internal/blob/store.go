// Package blob defines the object-storage boundary the trainer uploads
// bundles to and the serving cache downloads them from. The store is an
// injected interface so deployments can back it with any S3-compatible
// service; the filesystem implementation covers local and single-node use.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist reports that the requested object key does not exist.
var ErrNotExist = errors.New("object does not exist")

// ObjectStore reads and writes opaque blobs by key.
type ObjectStore interface {
	// Get returns the object's bytes, or an error wrapping ErrNotExist if
	// the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the object, replacing any previous value for the key.
	Put(ctx context.Context, key string, data []byte) error
}

// Compile-time check that FSStore implements ObjectStore.
var _ ObjectStore = (*FSStore)(nil)

// FSStore keeps objects as files under a root directory. Keys use '/'
// separators and may not escape the root.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Get reads the object's bytes.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %q: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}
	return data, nil
}

// Put writes the object atomically: a temp file in the same directory is
// renamed over the destination, so readers never observe a partial upload.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp object: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp object: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing object %q: %w", key, err)
	}
	return nil
}
