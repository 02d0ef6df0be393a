package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DirLoader reads corpus documents from a directory of JSON files. Keys are
// file names relative to the directory.
type DirLoader struct {
	dir string
}

// NewDirLoader creates a loader rooted at dir.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir}
}

// LoadJSON reads and decodes one document. The key appears in every error
// so callers can tell which corpus file failed.
func (l *DirLoader) LoadJSON(ctx context.Context, key string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(l.dir, filepath.Clean(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// Keys lists the JSON files available in the corpus directory.
func (l *DirLoader) Keys() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, filepath.Base(m))
	}
	return keys, nil
}
