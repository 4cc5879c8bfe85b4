package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps the snapshot in a local file.
type FileBackend struct {
	Path string
}

// Read returns the file content.
func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the file atomically (temp file then rename).
func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tempPath := f.Path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, f.Path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (f *FileBackend) String() string {
	return f.Path
}
