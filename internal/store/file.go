package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each collection as a JSON array in <dir>/<collection>.json.
// Writes go to a temporary file that is renamed over the target, so a
// reader never observes a half-written collection.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a FileStore
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing collection.
func (s *FileStore) Path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// ReadAll loads the collection file. A missing file is an empty collection.
func (s *FileStore) ReadAll(
	_ context.Context,
	collection string,
) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.Path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", collection, err)
	}

	return decodeArray(collection, blob)
}

// WriteAll atomically replaces the collection file.
func (s *FileStore) WriteAll(
	_ context.Context,
	collection string,
	docs []json.RawMessage,
) error {
	blob, err := encodeArray(docs)
	if err != nil {
		return fmt.Errorf("encoding collection %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", collection, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("writing collection %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", collection, err)
	}

	if err := os.Rename(tmpName, s.Path(collection)); err != nil {
		return fmt.Errorf("replacing collection %s: %w", collection, err)
	}
	return nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
