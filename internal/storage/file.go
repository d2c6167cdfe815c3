package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDocuments keeps each document as <dir>/<key>.json.
type FileDocuments struct {
	dir string
}

func NewFileDocuments(dir string) *FileDocuments {
	return &FileDocuments{dir: dir}
}

func (f *FileDocuments) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Load returns the document body, or nil when the file does not exist.
func (f *FileDocuments) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", key, err)
	}
	return data, nil
}

// Save writes body to a temp file in the same directory and renames it over
// the document, so readers never observe a partial write.
func (f *FileDocuments) Save(_ context.Context, key string, body []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating document dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing document %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing document %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("replacing document %s: %w", key, err)
	}
	return nil
}
