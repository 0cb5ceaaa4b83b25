package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend persists the whole store as a single document. Save must replace
// the previous document atomically; Load returns nil when nothing is stored.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
	Close() error
}

// FileBackend keeps the document on local disk
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend, creating the parent directory
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("file backend: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// Load reads the document
func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file backend: read: %w", err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory and renames it over the
// previous document so readers never observe a partial write.
func (b *FileBackend) Save(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file backend: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("file backend: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("file backend: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file backend: close: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("file backend: rename: %w", err)
	}
	return nil
}

// Close is a no-op
func (b *FileBackend) Close() error { return nil }

// Path returns the document location
func (b *FileBackend) Path() string { return b.path }

// MemoryBackend keeps the document in process. It records every save,
// which makes it useful for tests and ephemeral runs.
type MemoryBackend struct {
	mu    sync.Mutex
	doc   []byte
	saves [][]byte
	err   error
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the last saved document
func (b *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return nil, nil
	}
	return append([]byte(nil), b.doc...), nil
}

// Save stores the document unless a failure has been injected
func (b *MemoryBackend) Save(ctx context.Context, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.doc = append([]byte(nil), doc...)
	b.saves = append(b.saves, b.doc)
	return nil
}

// Close is a no-op
func (b *MemoryBackend) Close() error { return nil }

// FailWith makes subsequent saves return err; nil clears it
func (b *MemoryBackend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Saves returns every document written so far
func (b *MemoryBackend) Saves() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.saves...)
}
