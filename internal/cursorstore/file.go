package cursorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"net/url"
	"path/filepath"

	"github.com/BartekS5/IDA/internal/extract"
)

const DefaultDir = ".cursors"

// FileStore keeps one JSON file per task in Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cursor dir %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

// path escapes name so that distinct task names never share a file.
func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, url.QueryEscape(name)+".json")
}

func (s *FileStore) Load(_ context.Context, name string) (extract.Cursor, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return extract.Cursor{}, false, nil
	}
	if err != nil {
		return extract.Cursor{}, false, fmt.Errorf("read cursor %s: %w", name, err)
	}

	var cur extract.Cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		return extract.Cursor{}, false, fmt.Errorf("parse cursor %s: %w", name, err)
	}
	return cur, true, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// half-written cursor behind.
func (s *FileStore) Save(_ context.Context, name string, cur extract.Cursor) error {
	data, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cursor %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Reset(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset cursor %s: %w", name, err)
	}
	return nil
}
