package state

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FileKV is a directory-backed key-value store. Each key is kept in its own
// file at <root>/<escaped key>.json.
type FileKV struct {
	root string
	mu   sync.RWMutex
}

// NewFileKV creates a FileKV rooted at the given directory. The directory is
// created on first write.
func NewFileKV(root string) *FileKV {
	return &FileKV{root: root}
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.root, url.QueryEscape(key)+".json")
}

// Get returns the stored value for key.
func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value for key atomically (temp file + rename).
func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (f *FileKV) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
