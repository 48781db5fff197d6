package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend persists the history sequence as one flat JSON file.
// Saves go through a temporary file and an atomic rename, so a crash
// mid-write leaves the previous file intact.
type FileBackend struct {
	path string // path is the history file location
}

// NewFileBackend creates a file backend, ensuring the parent directory
// exists.
func NewFileBackend(path string) (*FileBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory %s:\n%w", dir, err)
	}

	return &FileBackend{path: path}, nil
}

// Load reads the persisted sequence. A missing file is an empty
// history, not an error.
func (b *FileBackend) Load() ([]Entry, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s:\n%w", b.path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s:\n%w", b.path, err)
	}

	return entries, nil
}

// Save writes the full sequence to a temporary file, syncs it, and
// atomically renames it into place.
func (b *FileBackend) Save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history:\n%w", err)
	}

	tmp := b.path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open %s:\n%w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s:\n%w", tmp, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s:\n%w", tmp, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s:\n%w", tmp, err)
	}

	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s:\n%w", tmp, err)
	}

	return nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}
