package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// FileStore keeps each ring in its own file named <id>.ring
type FileStore struct {
	dir string
}

var _ KeyRingStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store rooted there
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("invalid key ring id %q", id)
	}
	return filepath.Join(s.dir, id+".ring"), nil
}

// Load reads the blob stored under id
func (s *FileStore) Load(ctx context.Context, id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key ring: %w", err)
	}
	return blob, nil
}

// Save writes blob to a temporary file and renames it into place
func (s *FileStore) Save(ctx context.Context, id string, blob []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("writing key ring: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing key ring: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing key ring: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing key ring: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *FileStore) Close(ctx context.Context) error {
	return nil
}
