package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileStore keeps every key in its own JSON file inside a directory
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates a file store rooted at dir.
// A nil fs means the operating system filesystem.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// Location returns the path of the file holding key
func (s *FileStore) Location(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the file for key
func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Location(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Set writes the file for key through a temporary file and a rename,
// so readers never observe a half-written value.
func (s *FileStore) Set(key string, value []byte) error {
	target := s.Location(key)
	tmp, err := afero.TempFile(s.fs, s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
