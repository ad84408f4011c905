package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	errs "igprofiler/pkg/errors"
)

// FileStore keeps artifacts in a local directory.
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	saved map[string]bool
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errs.New(errs.ErrorTypeValidation, "storage directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileStore{dir: dir, saved: make(map[string]bool)}, nil
}

// Put writes the artifact through a temp file and rename so readers never
// see a partial image.
func (s *FileStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, name)
	out, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := out.Name()

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to write artifact data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.mu.Lock()
	s.saved[name] = true
	s.mu.Unlock()
	return target, nil
}

// Open opens a stored artifact.
func (s *FileStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := ValidateName(name); err != nil {
		return nil, Info{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Info{}, errs.New(errs.ErrorTypeNotFound, fmt.Sprintf("artifact %s not found", name))
		}
		return nil, Info{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Info{}, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return f, Info{Name: name, Size: st.Size(), ContentType: ContentTypeFor(name), ModTime: st.ModTime()}, nil
}

// Exists checks the in-memory index first, then the disk.
func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	s.mu.RLock()
	known := s.saved[name]
	s.mu.RUnlock()
	if known {
		return true, nil
	}

	if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	s.mu.Lock()
	s.saved[name] = true
	s.mu.Unlock()
	return true, nil
}

// Dir returns the directory artifacts are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Count returns how many artifacts this store has written or seen.
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.saved)
}
